package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ordermind/internal/logger"
)

// OpenAIChatClient 兼容 OpenAI 及 Azure OpenAI 的 /chat/completions 接口。
// APIVersion 非空时按 Azure 部署形式拼 URL 并用 api-key 头鉴权。
type OpenAIChatClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	APIVersion string
	Timeout    time.Duration
	MaxRetries int

	httpClient *http.Client
}

func NewOpenAIChatClient(baseURL, apiKey, model, apiVersion string, timeout time.Duration, maxRetries int) *OpenAIChatClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIChatClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      model,
		APIVersion: apiVersion,
		Timeout:    timeout,
		MaxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OpenAIChatClient) ID() string { return c.Model }

func (c *OpenAIChatClient) Enabled() bool { return strings.TrimSpace(c.APIKey) != "" }

func (c *OpenAIChatClient) endpoint() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	// 用户可能把完整路径写进了配置，统一剥掉后再追加
	base = strings.TrimSuffix(base, "/chat/completions")
	if c.APIVersion != "" {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			base, url.PathEscape(c.Model), url.QueryEscape(c.APIVersion))
	}
	return base + "/chat/completions"
}

// Complete 调用聊天补全并返回首选 choice 的文本。
// 429/5xx 走指数退避重试；其余失败一律包装为 UpstreamError。
func (c *OpenAIChatClient) Complete(ctx context.Context, payload ChatPayload) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	messages := make([]map[string]string, 0, 2)
	if payload.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": payload.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": payload.User})
	body := map[string]any{"model": c.Model, "messages": messages, "temperature": payload.Temperature}
	if payload.MaxTokens > 0 {
		body["max_tokens"] = payload.MaxTokens
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", &UpstreamError{Provider: c.ID(), Err: err}
	}

	endpoint := c.endpoint()
	var out string
	attempt := 0
	op := func() error {
		attempt++
		content, err := c.doRequest(ctx, endpoint, b)
		if err != nil {
			return err
		}
		out = content
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(max(c.MaxRetries, 0))), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		logger.Warnf("[llm] completion failed model=%s attempts=%d err=%v", c.Model, attempt, err)
		if ue, ok := err.(*UpstreamError); ok {
			return "", ue
		}
		return "", &UpstreamError{Provider: c.ID(), Err: err}
	}
	logger.DumpLLM("chat", c.Model, payload.User, out)
	return out, nil
}

func (c *OpenAIChatClient) doRequest(ctx context.Context, endpoint string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(&UpstreamError{Provider: c.ID(), Err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIVersion != "" {
		req.Header.Set("api-key", c.APIKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", backoff.Permanent(&UpstreamError{Provider: c.ID(), Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		var r struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if derr := json.NewDecoder(resp.Body).Decode(&r); derr != nil {
			return "", backoff.Permanent(&UpstreamError{Provider: c.ID(), Err: derr})
		}
		if len(r.Choices) == 0 {
			return "", backoff.Permanent(&UpstreamError{Provider: c.ID(), Err: fmt.Errorf("empty choices")})
		}
		return r.Choices[0].Message.Content, nil
	}

	var eresp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&eresp)
	msg := strings.TrimSpace(eresp.Error.Message)
	if msg == "" {
		msg = resp.Status
	}
	statusErr := &UpstreamError{Provider: c.ID(), Err: fmt.Errorf("status=%d: %s", resp.StatusCode, msg)}
	if retryableStatus(resp.StatusCode) {
		return "", statusErr
	}
	return "", backoff.Permanent(statusErr)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
