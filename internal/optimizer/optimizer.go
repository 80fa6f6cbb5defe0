// Package optimizer 用模型改写提示词:把分析出的模式与少样本
// 交给一个"提示词工程师"角色,产出下一版完整模板。
package optimizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ordermind/internal/learning"
	"ordermind/internal/logger"
	"ordermind/internal/provider"
)

const optimizerSystem = `You are a prompt engineer maintaining an execution-strategy prompt for a trading desk.
Rewrite the prompt so it reflects the observed trader corrections, while keeping every template placeholder
(like {security} or {history_summary}) and the final "Return ONLY valid JSON" instruction intact.
Reply with the complete rewritten prompt and nothing else.`

// LLMOptimizer 基于 ModelProvider 的提示词优化器。
type LLMOptimizer struct {
	model       provider.ModelProvider
	temperature float64
}

func NewLLMOptimizer(model provider.ModelProvider, temperature float64) *LLMOptimizer {
	return &LLMOptimizer{model: model, temperature: temperature}
}

// Propose 请求模型给出改写后的提示词。模型关闭或调用失败时返回错误,
// 由训练侧决定回退。
func (o *LLMOptimizer) Propose(ctx context.Context, currentPrompt string, analysis learning.Analysis, examples []string) (string, error) {
	if o.model == nil || !o.model.Enabled() {
		return "", provider.ErrDisabled
	}
	analysisJSON, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Current prompt:\n---\n")
	b.WriteString(currentPrompt)
	b.WriteString("\n---\n\nCorrection analysis:\n")
	b.Write(analysisJSON)
	if len(examples) > 0 {
		b.WriteString("\n\nRecent corrections:\n")
		for _, ex := range examples {
			b.WriteString(ex)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nRewrite the prompt now.")

	out, err := o.model.Complete(ctx, provider.ChatPayload{
		System:      optimizerSystem,
		User:        b.String(),
		Temperature: o.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("optimizer completion: %w", err)
	}
	out = strings.TrimSpace(stripFence(out))
	if out == "" {
		return "", fmt.Errorf("optimizer returned empty prompt")
	}
	logger.Debugf("[optimizer] proposal length=%d", len(out))
	return out, nil
}

// 模型偶尔把整段提示词包进代码围栏,剥掉最外层。
func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	if i := strings.Index(t, "\n"); i >= 0 {
		t = t[i+1:]
	}
	if i := strings.LastIndex(t, "```"); i >= 0 {
		t = t[:i]
	}
	return t
}
