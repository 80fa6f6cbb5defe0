package strategy

import "fmt"

// 订单占 ADV 的分档阈值,百分比。
const (
	highImpactPct     = 10.0
	moderateImpactPct = 5.0
	lowImpactPct      = 1.0
	splitWarningPct   = 15.0
)

// RuleSuggest 是确定性的规则回退:按订单占 ADV 百分比分档。
// 阈值本身落在下一档(恰好 10% 属于 5%~10% 档)。
func RuleSuggest(order Order, ctx Context) Suggestion {
	pct := ctx.OrderPctADV
	s := Suggestion{
		Context:         ctx,
		Source:          SourceRules,
		BehavioralNotes: "Rule-based recommendation",
	}
	switch {
	case pct > highImpactPct:
		s.Strategy = VWAP
		s.Risk = RiskHigh
		s.Reasoning = fmt.Sprintf("Order is %.2f%% of ADV, high market impact expected; VWAP tracks volume to reduce footprint", pct)
	case pct > moderateImpactPct:
		s.Strategy = VWAP
		s.Risk = RiskModerate
		s.Reasoning = fmt.Sprintf("Order is %.2f%% of ADV, moderate market impact; VWAP keeps participation in line with volume", pct)
	case pct > lowImpactPct:
		s.Strategy = TWAP
		s.Risk = RiskLow
		s.Reasoning = fmt.Sprintf("Order is %.2f%% of ADV, low market impact; TWAP spreads execution evenly over the day", pct)
	default:
		s.Strategy = TWAP
		s.Risk = RiskLow
		s.Reasoning = fmt.Sprintf("Order is %.2f%% of ADV, minimal market impact; TWAP is sufficient", pct)
	}
	if pct > splitWarningPct {
		s.Warnings = append(s.Warnings, fmt.Sprintf("Order is %.2f%% of ADV, consider splitting across multiple days", pct))
	}
	return s
}

// PctOfADV 计算订单占 ADV 的百分比。ADV 非正时按兜底 ADV 处理由调用方保证。
func PctOfADV(quantity, adv float64) float64 {
	if adv <= 0 {
		return 0
	}
	return quantity / adv * 100
}
