package sms

import (
	"context"
	"errors"
	"sync"
)

type MockCall struct {
	Phone         string
	SignName      string
	TemplateCode  string
	TemplateParam string
}

// MockClient 可配置的短信客户端 mock，实现 Client 接口
type MockClient struct {
	mu    sync.Mutex
	calls []MockCall

	// FailNext 置为 true 时，下一次调用返回 mock 错误并自动复位
	FailNext bool
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendSingle(_ context.Context, phone, signName, templateCode, templateParam string) (*SendResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{
		Phone:         phone,
		SignName:      signName,
		TemplateCode:  templateCode,
		TemplateParam: templateParam,
	})
	return m.result(templateCode)
}

func (m *MockClient) SendBatch(_ context.Context, phones []string, signName, templateCode string, templateParams []string) (*SendResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, phone := range phones {
		call := MockCall{Phone: phone, SignName: signName, TemplateCode: templateCode}
		if i < len(templateParams) {
			call.TemplateParam = templateParams[i]
		}
		m.calls = append(m.calls, call)
	}
	return m.result(templateCode)
}

// Calls 返回已记录调用的副本
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

func (m *MockClient) result(templateCode string) (*SendResponse, error) {
	if m.FailNext {
		m.FailNext = false
		return nil, errors.New("mock sms send failure")
	}
	return &SendResponse{
		MessageID: "mock-message-id",
		Code:      "OK",
		Message:   "mock send success",
		RequestID: "mock-request-id",
		Provider:  "mock",
		Template:  templateCode,
	}, nil
}
