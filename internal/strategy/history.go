package strategy

import (
	"fmt"
	"strings"

	"ordermind/internal/refdata"
)

// SummarizeHistory 把交易员历史格式化成注入提示词的多行摘要。
// 没有历史时返回固定占位文案,提示词里不会出现空洞。
func SummarizeHistory(trades []refdata.Trade) string {
	if len(trades) == 0 {
		return "No recent trading history available."
	}
	lines := make([]string, 0, len(trades))
	for _, tr := range trades {
		lines = append(lines, fmt.Sprintf("- %d days ago: %s %d %s using %s (%s)",
			tr.DaysAgo, tr.Side, tr.Quantity, tr.Symbol, tr.Strategy, tr.TIF))
	}
	return strings.Join(lines, "\n")
}
