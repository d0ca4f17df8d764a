package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SendResponse 短信发送结果
type SendResponse struct {
	MessageID string // 阿里云 BizId
	Code      string // 如 "OK", "isv.BUSINESS_LIMIT_CONTROL"
	Message   string
	RequestID string
	Provider  string
	Template  string
}

// Client SMS 客户端接口
type Client interface {
	// SendSingle templateParam 为 JSON 字符串
	SendSingle(ctx context.Context, phone, signName, templateCode, templateParam string) (*SendResponse, error)

	// SendBatch templateParams 与 phones 一一对应
	SendBatch(ctx context.Context, phones []string, signName, templateCode string, templateParams []string) (*SendResponse, error)
}

// New 按 provider 创建客户端
func New(provider string) (Client, error) {
	switch strings.ToLower(provider) {
	case "aliyun":
		return NewAliyunClient()
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported SMS provider: %s", provider)
	}
}

// TemplateParam 构造模板参数 JSON
func TemplateParam(params map[string]string) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal template param: %w", err)
	}
	return string(data), nil
}

// MaskPhone 日志中只保留号码末四位
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
