package sms

import (
	"context"
	"encoding/json"
	"fmt"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	openapiutil "github.com/alibabacloud-go/openapi-util/service"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"
	credential "github.com/aliyun/credentials-go/credentials"
	"go.uber.org/zap"

	"CrisisDesk/pkg/errors"
	"CrisisDesk/pkg/logger"
)

// apiCaller openapi.Client 的最小子集
type apiCaller interface {
	CallApi(params *openapi.Params, request *openapi.OpenApiRequest, runtime *util.RuntimeOptions) (map[string]interface{}, error)
}

type AliyunClient struct {
	client apiCaller
}

// NewAliyunClient 凭据从环境变量 ALIBABA_CLOUD_ACCESS_KEY_ID / ALIBABA_CLOUD_ACCESS_KEY_SECRET 获取
func NewAliyunClient() (*AliyunClient, error) {
	cred, err := credential.NewCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun credential: %w", err)
	}

	client, err := openapi.NewClient(&openapi.Config{
		Credential: cred,
		Endpoint:   tea.String("dysmsapi.aliyuncs.com"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun client: %w", err)
	}

	return &AliyunClient{client: client}, nil
}

func (c *AliyunClient) createApiInfo(action string) *openapi.Params {
	return &openapi.Params{
		Action:      tea.String(action),
		Version:     tea.String("2017-05-25"),
		Protocol:    tea.String("HTTPS"),
		Method:      tea.String("POST"),
		AuthType:    tea.String("AK"),
		Style:       tea.String("RPC"),
		Pathname:    tea.String("/"),
		ReqBodyType: tea.String("json"),
		BodyType:    tea.String("json"),
	}
}

func (c *AliyunClient) SendSingle(ctx context.Context, phone, signName, templateCode, templateParam string) (*SendResponse, error) {
	if signName == "" {
		return nil, errors.ErrSignNameRequired
	}
	if templateCode == "" {
		return nil, errors.ErrTemplateCodeRequired
	}

	resp, err := c.call(ctx, "SendSms", templateCode, map[string]interface{}{
		"PhoneNumbers":  tea.String(phone),
		"SignName":      tea.String(signName),
		"TemplateCode":  tea.String(templateCode),
		"TemplateParam": tea.String(templateParam),
	})
	if err != nil {
		logger.Logger.Error("Failed to send SMS",
			zap.String("phone", MaskPhone(phone)),
			zap.String("template", templateCode),
			zap.Error(err),
		)
		return resp, err
	}

	logger.Logger.Info("SMS sent successfully",
		zap.String("phone", MaskPhone(phone)),
		zap.String("template", templateCode),
		zap.String("biz_id", resp.MessageID),
	)
	return resp, nil
}

func (c *AliyunClient) SendBatch(ctx context.Context, phones []string, signName, templateCode string, templateParams []string) (*SendResponse, error) {
	if signName == "" {
		return nil, errors.ErrSignNameRequired
	}
	if templateCode == "" {
		return nil, errors.ErrTemplateCodeRequired
	}
	if len(phones) == 0 {
		return nil, fmt.Errorf("phones list is empty")
	}
	if len(templateParams) != len(phones) {
		return nil, fmt.Errorf("templateParams count (%d) must match phones count (%d)", len(templateParams), len(phones))
	}

	signNames := make([]string, len(phones))
	for i := range signNames {
		signNames[i] = signName
	}

	phonesJSON, _ := json.Marshal(phones)
	signNamesJSON, _ := json.Marshal(signNames)
	paramsJSON, _ := json.Marshal(templateParams)

	resp, err := c.call(ctx, "SendBatchSms", templateCode, map[string]interface{}{
		"PhoneNumberJson":   tea.String(string(phonesJSON)),
		"SignNameJson":      tea.String(string(signNamesJSON)),
		"TemplateCode":      tea.String(templateCode),
		"TemplateParamJson": tea.String(string(paramsJSON)),
	})
	if err != nil {
		logger.Logger.Error("Failed to send batch SMS",
			zap.Int("count", len(phones)),
			zap.String("template", templateCode),
			zap.Error(err),
		)
		return resp, err
	}

	logger.Logger.Info("Batch SMS sent successfully",
		zap.Int("count", len(phones)),
		zap.String("template", templateCode),
	)
	return resp, nil
}

// call SDK 同步调用不支持 ctx，这里只在调用前检查取消
func (c *AliyunClient) call(ctx context.Context, action, templateCode string, queries map[string]interface{}) (*SendResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := c.client.CallApi(c.createApiInfo(action), &openapi.OpenApiRequest{
		Query: openapiutil.Query(queries),
	}, &util.RuntimeOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", action, err)
	}

	return parseResponse(raw, templateCode)
}

func parseResponse(raw map[string]interface{}, templateCode string) (*SendResponse, error) {
	resp := &SendResponse{Provider: "aliyun", Template: templateCode}

	if code, ok := raw["statusCode"].(int); ok && code != 200 {
		return resp, fmt.Errorf("SMS API error: statusCode=%d", code)
	}

	body, ok := raw["body"].(map[string]interface{})
	if !ok {
		return resp, nil
	}

	resp.Code, _ = body["Code"].(string)
	resp.Message, _ = body["Message"].(string)
	resp.RequestID, _ = body["RequestId"].(string)
	resp.MessageID, _ = body["BizId"].(string)

	if resp.Code != "" && resp.Code != "OK" {
		return resp, fmt.Errorf("SMS send failed: %s - %s", resp.Code, resp.Message)
	}
	return resp, nil
}
