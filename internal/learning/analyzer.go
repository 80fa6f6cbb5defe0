// Package learning 实现离线学习闭环:分析纠正记录里的行为模式,
// 据此训练新版本提示词,并输出人类可读的分析报告。
package learning

import (
	"fmt"
	"sort"
	"time"

	"ordermind/internal/correction"
)

// 模式类别。
const (
	PatternFrequentCorrection = "frequent_correction"
	PatternSecuritySpecific   = "security_specific"
	PatternOrderSizeThreshold = "order_size_threshold"
)

// 触发模式的最小样本量。
const (
	minPairCount     = 3
	minSecurityCount = 2
	minSizeSamples   = 5
	minSizePerGroup  = 2
)

// PairCount 统计一种 建议->纠正 组合的出现次数及其在全部纠正中的占比。
type PairCount struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// SecurityCount 统计某只证券上的纠正次数。
type SecurityCount struct {
	Security string `json:"security"`
	Count    int    `json:"count"`
}

// SizeStats 是所有带数量的纠正的订单规模概况。
type SizeStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Pattern 是一条被识别出的行为模式。
// security_specific 模式里 Strategy 是该证券上交易员最常改成的策略,
// Count 是该策略的次数,Total 是这只证券的全部纠正次数。
type Pattern struct {
	Kind        string  `json:"kind"`
	Description string  `json:"description"`
	From        string  `json:"from,omitempty"`
	To          string  `json:"to,omitempty"`
	Security    string  `json:"security,omitempty"`
	Strategy    string  `json:"strategy,omitempty"`
	Count       int     `json:"count,omitempty"`
	Total       int     `json:"total,omitempty"`
	AvgQuantity float64 `json:"avg_quantity,omitempty"`
}

// Analysis 是一次完整的纠正分析结果。
type Analysis struct {
	GeneratedAt      time.Time       `json:"generated_at"`
	WindowDays       int             `json:"window_days"`
	TotalCorrections int             `json:"total_corrections"`
	Message          string          `json:"message,omitempty"`
	SuggestedCounts  map[string]int  `json:"suggested_counts,omitempty"`
	CorrectedCounts  map[string]int  `json:"corrected_counts,omitempty"`
	StrategyPairs    []PairCount     `json:"strategy_pairs"`
	TopSecurities    []SecurityCount `json:"top_securities"`
	SizeStats        *SizeStats      `json:"size_stats,omitempty"`
	Patterns         []Pattern       `json:"patterns"`
}

// Analyze 对一批纠正做模式归纳,只看标记为策略纠正的记录。
// 统计排序带确定性的次级排序键,输入顺序不影响结果。
func Analyze(records []correction.Record, windowDays int) Analysis {
	a := Analysis{
		GeneratedAt: time.Now().UTC(),
		WindowDays:  windowDays,
	}

	filtered := make([]correction.Record, 0, len(records))
	for _, rec := range records {
		if rec.Metadata.CorrectionType == correction.TypeStrategySuggestion {
			filtered = append(filtered, rec)
		}
	}
	a.TotalCorrections = len(filtered)
	if len(filtered) == 0 {
		a.Message = "no strategy corrections in the window"
		return a
	}

	a.SuggestedCounts = make(map[string]int)
	a.CorrectedCounts = make(map[string]int)
	pairCounts := make(map[[2]string]int)
	secCounts := make(map[string]int)
	secStrategy := make(map[string]map[string]int)
	sizeByStrategy := make(map[string][]float64)
	var sizes []float64
	for _, rec := range filtered {
		from, to := rec.SuggestedStrategy(), rec.CorrectedStrategy()
		if from != "" {
			a.SuggestedCounts[from]++
		}
		if to != "" {
			a.CorrectedCounts[to]++
		}
		if from != "" && to != "" {
			pairCounts[[2]string{from, to}]++
		}
		if sym := rec.Security(); sym != "" {
			secCounts[sym]++
			if to != "" {
				if secStrategy[sym] == nil {
					secStrategy[sym] = make(map[string]int)
				}
				secStrategy[sym][to]++
			}
		}
		if qty, ok := rec.Quantity(); ok && qty > 0 {
			sizes = append(sizes, qty)
			if to != "" {
				sizeByStrategy[to] = append(sizeByStrategy[to], qty)
			}
		}
	}

	for k, n := range pairCounts {
		a.StrategyPairs = append(a.StrategyPairs, PairCount{
			From:       k[0],
			To:         k[1],
			Count:      n,
			Percentage: float64(n) / float64(len(filtered)) * 100,
		})
	}
	sort.Slice(a.StrategyPairs, func(i, j int) bool {
		pi, pj := a.StrategyPairs[i], a.StrategyPairs[j]
		if pi.Count != pj.Count {
			return pi.Count > pj.Count
		}
		if pi.From != pj.From {
			return pi.From < pj.From
		}
		return pi.To < pj.To
	})

	for sym, n := range secCounts {
		a.TopSecurities = append(a.TopSecurities, SecurityCount{Security: sym, Count: n})
	}
	sort.Slice(a.TopSecurities, func(i, j int) bool {
		si, sj := a.TopSecurities[i], a.TopSecurities[j]
		if si.Count != sj.Count {
			return si.Count > sj.Count
		}
		return si.Security < sj.Security
	})

	if len(sizes) > 0 {
		st := &SizeStats{Count: len(sizes), Min: sizes[0], Max: sizes[0]}
		var sum float64
		for _, q := range sizes {
			sum += q
			if q < st.Min {
				st.Min = q
			}
			if q > st.Max {
				st.Max = q
			}
		}
		st.Mean = sum / float64(len(sizes))
		a.SizeStats = st
	}

	// 高频纠正:出现最多的组合达到阈值
	if len(a.StrategyPairs) > 0 && a.StrategyPairs[0].Count >= minPairCount {
		top := a.StrategyPairs[0]
		a.Patterns = append(a.Patterns, Pattern{
			Kind:        PatternFrequentCorrection,
			From:        top.From,
			To:          top.To,
			Count:       top.Count,
			Description: fmt.Sprintf("Traders frequently correct %s to %s (%d times, %.0f%% of corrections)", top.From, top.To, top.Count, top.Percentage),
		})
	}

	// 证券偏好:前三只证券里纠正次数达标的,记下交易员最常改成的策略
	for i, sc := range a.TopSecurities {
		if i >= 3 {
			break
		}
		if sc.Count < minSecurityCount {
			continue
		}
		preferred, prefCount := preferredStrategy(secStrategy[sc.Security])
		if preferred == "" {
			continue
		}
		a.Patterns = append(a.Patterns, Pattern{
			Kind:        PatternSecuritySpecific,
			Security:    sc.Security,
			Strategy:    preferred,
			Count:       prefCount,
			Total:       sc.Count,
			Description: fmt.Sprintf("For %s, traders prefer %s (%d of %d corrections)", sc.Security, preferred, prefCount, sc.Count),
		})
	}

	// 规模偏好:数量样本够多且每组至少有两单。
	// 样本量按全部带数量的纠正计,不要求记录同时带纠正策略。
	if len(sizes) >= minSizeSamples {
		strategies := make([]string, 0, len(sizeByStrategy))
		for s := range sizeByStrategy {
			strategies = append(strategies, s)
		}
		sort.Strings(strategies)
		for _, s := range strategies {
			group := sizeByStrategy[s]
			if len(group) < minSizePerGroup {
				continue
			}
			var sum float64
			for _, q := range group {
				sum += q
			}
			avg := sum / float64(len(group))
			a.Patterns = append(a.Patterns, Pattern{
				Kind:        PatternOrderSizeThreshold,
				Strategy:    s,
				Count:       len(group),
				AvgQuantity: avg,
				Description: fmt.Sprintf("Traders pick %s for orders averaging %.0f shares (%d orders)", s, avg, len(group)),
			})
		}
	}

	return a
}

// preferredStrategy 返回出现最多的策略,平手时取字典序靠前的。
func preferredStrategy(counts map[string]int) (string, int) {
	best, bestN := "", 0
	for s, n := range counts {
		if n > bestN || (n == bestN && (best == "" || s < best)) {
			best, bestN = s, n
		}
	}
	return best, bestN
}
