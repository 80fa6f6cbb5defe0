package provider

import (
	"context"
	"errors"
)

// ChatPayload 描述一次聊天补全请求。
type ChatPayload struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// ModelProvider 是对托管 LLM 的最小能力抽象：prompt 进、文本出。
// 所有失败以 UpstreamError 形式返回，由调用方决定回退策略。
type ModelProvider interface {
	ID() string
	Enabled() bool
	Complete(ctx context.Context, payload ChatPayload) (string, error)
}

// ErrDisabled: 进程未配置凭据，终身规则回退。
var ErrDisabled = errors.New("llm provider disabled")

// UpstreamError 包装所有模型侧失败（网络、超时、非 2xx、空补全）。
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return "llm upstream (" + e.Provider + "): " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Disabled 返回一个永远拒绝调用的 provider，用于无凭据启动。
func Disabled() ModelProvider { return disabledProvider{} }

type disabledProvider struct{}

func (disabledProvider) ID() string     { return "disabled" }
func (disabledProvider) Enabled() bool  { return false }
func (disabledProvider) Complete(context.Context, ChatPayload) (string, error) {
	return "", ErrDisabled
}
