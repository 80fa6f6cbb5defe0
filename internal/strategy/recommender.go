package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"ordermind/internal/logger"
	"ordermind/internal/pkg/jsonutil"
	"ordermind/internal/policy"
	"ordermind/internal/provider"
	"ordermind/internal/refdata"
)

// Tracer 在建议返回前登记一条 rollout,供后续奖励回填。
// 实现必须快速返回且永不向调用方抛错。
type Tracer interface {
	EmitSuggestion(ctx context.Context, order Order, sug Suggestion) string
}

// 模型输出的结构校验:字段类型管住,策略取值故意不做枚举,
// 超出集合的策略在解析后统一压回 TWAP。
const suggestionSchema = `{
	"type": "object",
	"required": ["suggested_strategy", "market_impact_risk"],
	"properties": {
		"suggested_strategy": {"type": "string", "minLength": 1},
		"market_impact_risk": {"type": "string", "minLength": 1},
		"reasoning":          {"type": "string"},
		"behavioral_notes":   {"type": "string"},
		"warnings":           {"type": "array", "items": {"type": "string"}}
	}
}`

var compiledSuggestionSchema = jsonschema.MustCompileString("suggestion.json", suggestionSchema)

// Recommender 把提示词、模型与规则回退组合成完整的推荐路径。
type Recommender struct {
	model       provider.ModelProvider
	policy      *policy.Store
	table       *refdata.Table
	temperature float64
	tracer      Tracer
}

func NewRecommender(model provider.ModelProvider, store *policy.Store, table *refdata.Table, temperature float64, tracer Tracer) *Recommender {
	return &Recommender{model: model, policy: store, table: table, temperature: temperature, tracer: tracer}
}

// Suggest 为订单生成策略建议。模型不可用、响应解析失败或校验不过时,
// 整体回退到规则分档,永远返回一个可用的建议。
func (r *Recommender) Suggest(ctx context.Context, order Order) Suggestion {
	order.Security = strings.ToUpper(strings.TrimSpace(order.Security))
	mctx := r.table.MarketContext(order.Security)
	sctx := Context{
		ADV:         mctx.ADV,
		OrderPctADV: PctOfADV(order.Quantity, mctx.ADV),
		Volatility:  mctx.Volatility,
	}

	sug, ok := r.fromModel(ctx, order, sctx)
	if !ok {
		sug = RuleSuggest(order, sctx)
	}
	if sctx.OrderPctADV > splitWarningPct && !hasSplitWarning(sug.Warnings) {
		sug.Warnings = append(sug.Warnings, fmt.Sprintf("Order is %.2f%% of ADV, consider splitting across multiple days", sctx.OrderPctADV))
	}
	if r.tracer != nil {
		sug.TraceID = r.tracer.EmitSuggestion(ctx, order, sug)
	}
	return sug
}

func (r *Recommender) fromModel(ctx context.Context, order Order, sctx Context) (Suggestion, bool) {
	if r.model == nil || !r.model.Enabled() {
		return Suggestion{}, false
	}
	version, tmpl := r.policy.ActivePrompt()
	prompt := RenderPrompt(tmpl, order, sctx, SummarizeHistory(r.table.History(order.Security, 5)))

	out, err := r.model.Complete(ctx, provider.ChatPayload{User: prompt, Temperature: r.temperature})
	if err != nil {
		logger.Warnf("[strategy] model call failed, using rule fallback: %v", err)
		return Suggestion{}, false
	}
	raw, ok := jsonutil.ExtractObject(out)
	if !ok {
		logger.Warnf("[strategy] no JSON object in model output, using rule fallback")
		return Suggestion{}, false
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		logger.Warnf("[strategy] model output not valid JSON: %v", err)
		return Suggestion{}, false
	}
	if err := compiledSuggestionSchema.Validate(doc); err != nil {
		logger.Warnf("[strategy] model output failed schema validation: %v", err)
		return Suggestion{}, false
	}

	sug := Suggestion{
		Strategy:        gjson.Get(raw, "suggested_strategy").String(),
		Risk:            strings.ToUpper(gjson.Get(raw, "market_impact_risk").String()),
		Reasoning:       gjson.Get(raw, "reasoning").String(),
		BehavioralNotes: gjson.Get(raw, "behavioral_notes").String(),
		Context:         sctx,
		Source:          SourceLLM,
		PromptVersion:   version,
	}
	for _, w := range gjson.Get(raw, "warnings").Array() {
		if w.String() != "" {
			sug.Warnings = append(sug.Warnings, w.String())
		}
	}
	if !ValidStrategy(sug.Strategy) {
		logger.Warnf("[strategy] model returned unknown strategy %q, coercing to TWAP", sug.Strategy)
		sug.Strategy = TWAP
	}
	if !ValidRisk(sug.Risk) {
		sug.Risk = RuleSuggest(order, sctx).Risk
	}
	return sug, true
}

func hasSplitWarning(warnings []string) bool {
	for _, w := range warnings {
		if strings.Contains(w, "splitting across multiple days") {
			return true
		}
	}
	return false
}

// RenderPrompt 把订单与市场上下文填进模板占位符。
// 用整体替换而不是模板引擎,模板里示例 JSON 的花括号不会被误伤。
func RenderPrompt(tmpl string, order Order, sctx Context, historySummary string) string {
	rep := strings.NewReplacer(
		"{security}", order.Security,
		"{quantity}", formatQuantity(order.Quantity),
		"{order_pct_adv}", fmt.Sprintf("%.2f", sctx.OrderPctADV),
		"{time_in_force}", order.TimeInForce,
		"{history_summary}", historySummary,
		"{adv}", formatQuantity(sctx.ADV),
		"{volatility}", sctx.Volatility,
	)
	return rep.Replace(tmpl)
}

func formatQuantity(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
