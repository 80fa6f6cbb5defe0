package learning

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteReport 把分析结果写成 analysis/analysis_<时间戳>.txt 报告,返回文件路径。
func WriteReport(dir string, a Analysis) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("analysis_%s.txt", a.GeneratedAt.Format("20060102_150405")))
	if err := os.WriteFile(path, []byte(FormatReport(a)), 0o644); err != nil {
		return "", fmt.Errorf("write analysis report: %w", err)
	}
	return path, nil
}

// FormatReport 渲染人类可读的分析报告。
func FormatReport(a Analysis) string {
	var b strings.Builder
	b.WriteString("CORRECTION ANALYSIS REPORT\n")
	b.WriteString("==========================\n")
	fmt.Fprintf(&b, "Generated: %s\n", a.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Window: last %d days\n", a.WindowDays)
	fmt.Fprintf(&b, "Total corrections: %d\n", a.TotalCorrections)
	if a.Message != "" {
		fmt.Fprintf(&b, "%s\n", a.Message)
	}
	b.WriteString("\n")

	b.WriteString("Strategy corrections:\n")
	if len(a.StrategyPairs) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, p := range a.StrategyPairs {
		fmt.Fprintf(&b, "  %s -> %s: %d (%.0f%%)\n", p.From, p.To, p.Count, p.Percentage)
	}

	b.WriteString("\nMost corrected securities:\n")
	if len(a.TopSecurities) == 0 {
		b.WriteString("  (none)\n")
	}
	for i, s := range a.TopSecurities {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "  %s: %d\n", s.Security, s.Count)
	}

	if a.SizeStats != nil {
		b.WriteString("\nOrder sizes:\n")
		fmt.Fprintf(&b, "  count=%d mean=%.0f min=%.0f max=%.0f\n",
			a.SizeStats.Count, a.SizeStats.Mean, a.SizeStats.Min, a.SizeStats.Max)
	}

	b.WriteString("\nDetected patterns:\n")
	if len(a.Patterns) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, p := range a.Patterns {
		fmt.Fprintf(&b, "  [%s] %s\n", p.Kind, p.Description)
	}
	return b.String()
}
