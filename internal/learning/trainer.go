package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ordermind/internal/correction"
	"ordermind/internal/logger"
	"ordermind/internal/policy"
)

const jsonAnchor = "Return ONLY valid JSON"

// ErrNotEnoughCorrections 表示窗口内样本不足,不训练。
type ErrNotEnoughCorrections struct {
	Have, Need int
}

func (e *ErrNotEnoughCorrections) Error() string {
	return fmt.Sprintf("not enough corrections to train: have %d, need %d", e.Have, e.Need)
}

// Optimizer 用模型把分析结果改写进提示词。实现可以不可用,
// 训练会退回确定性的少样本拼接。
type Optimizer interface {
	Propose(ctx context.Context, currentPrompt string, analysis Analysis, examples []string) (string, error)
}

// TrainResult 是一次训练的产物。
type TrainResult struct {
	Version              int      `json:"version"`
	CorrectionCount      int      `json:"correction_count"`
	PatternsFound        int      `json:"patterns_found"`
	FewShotExamplesAdded int      `json:"few_shot_examples_added"`
	Analysis             Analysis `json:"analysis"`
	UsedOptimizer        bool     `json:"used_optimizer"`
}

// Trainer 把分析结果固化成新版本提示词。
type Trainer struct {
	corrections *correction.Store
	policy      *policy.Store
	index       *policy.Index
	optimizer   Optimizer

	windowDays     int
	minCorrections int
}

func NewTrainer(store *correction.Store, ps *policy.Store, ix *policy.Index, opt Optimizer, windowDays, minCorrections int) *Trainer {
	return &Trainer{
		corrections:    store,
		policy:         ps,
		index:          ix,
		optimizer:      opt,
		windowDays:     windowDays,
		minCorrections: minCorrections,
	}
}

// Train 加载窗口内纠正、做分析并产出下一个版本的提示词文件。
// 样本量在过滤前后各检查一次:窗口内太少不训,能配对的太少也不训。
func (t *Trainer) Train(ctx context.Context) (TrainResult, error) {
	records, err := t.corrections.Load(t.windowDays)
	if err != nil {
		return TrainResult{}, err
	}
	if len(records) < t.minCorrections {
		return TrainResult{}, &ErrNotEnoughCorrections{Have: len(records), Need: t.minCorrections}
	}
	usable := filterUsable(records)
	if len(usable) < t.minCorrections {
		return TrainResult{}, &ErrNotEnoughCorrections{Have: len(usable), Need: t.minCorrections}
	}

	analysis := Analyze(usable, t.windowDays)
	baseVersion, current := t.policy.ActivePrompt()
	examples := FewShotExamples(analysis)

	prompt := ""
	usedOptimizer := false
	if t.optimizer != nil {
		improved, oerr := t.optimizer.Propose(ctx, current, analysis, examples)
		if oerr != nil {
			logger.Warnf("[learning] optimizer unavailable, composing prompt deterministically: %v", oerr)
		} else if strings.Contains(improved, jsonAnchor) {
			prompt = improved
			usedOptimizer = true
		} else {
			logger.Warnf("[learning] optimizer dropped the JSON anchor, discarding its proposal")
		}
	}
	if prompt == "" {
		prompt = ComposePrompt(current, analysis, examples)
	}

	version, err := t.index.NextVersion(t.policy)
	if err != nil {
		return TrainResult{}, fmt.Errorf("allocate version: %w", err)
	}
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return TrainResult{}, err
	}
	insights := make([]string, 0, len(analysis.Patterns))
	for _, p := range analysis.Patterns {
		insights = append(insights, p.Description)
	}
	topPairs := analysis.StrategyPairs
	if len(topPairs) > 5 {
		topPairs = topPairs[:5]
	}
	topPairsJSON, _ := json.Marshal(topPairs)
	meta := policy.Metadata{
		BaseVersion:          baseVersion,
		Created:              time.Now().UTC(),
		CorrectionCount:      len(usable),
		PatternsFound:        len(analysis.Patterns),
		FewShotExamplesAdded: len(examples),
		Insights:             insights,
		TopPairs:             topPairsJSON,
		Analysis:             analysisJSON,
	}
	if err := t.policy.SaveVersion(version, prompt, meta); err != nil {
		return TrainResult{}, err
	}
	logger.Infof("[learning] trained prompt v%d from %d corrections (optimizer=%v)", version, len(usable), usedOptimizer)
	return TrainResult{
		Version:              version,
		CorrectionCount:      len(usable),
		PatternsFound:        len(analysis.Patterns),
		FewShotExamplesAdded: len(examples),
		Analysis:             analysis,
		UsedOptimizer:        usedOptimizer,
	}, nil
}

// filterUsable 保留建议和纠正都带 strategy 字段的记录。
func filterUsable(records []correction.Record) []correction.Record {
	out := make([]correction.Record, 0, len(records))
	for _, r := range records {
		if r.SuggestedStrategy() != "" && r.CorrectedStrategy() != "" {
			out = append(out, r)
		}
	}
	return out
}

// FewShotExamples 把识别出的模式展开成注入提示词的少样本例句,
// 每个模式一条,按模式类别用不同的讲法。
func FewShotExamples(a Analysis) []string {
	out := make([]string, 0, len(a.Patterns))
	for _, p := range a.Patterns {
		switch p.Kind {
		case PatternSecuritySpecific:
			out = append(out, fmt.Sprintf(
				"Example (based on %d user corrections):\n- Security: %s\n- Historical user preference: %s\n- Reason: Users consistently choose %s for %s orders\n→ Recommended: %s",
				p.Total, p.Security, p.Strategy, p.Strategy, p.Security, p.Strategy))
		case PatternFrequentCorrection:
			pct := 0.0
			if a.TotalCorrections > 0 {
				pct = float64(p.Count) / float64(a.TotalCorrections) * 100
			}
			out = append(out, fmt.Sprintf(
				"Example (based on %d user corrections):\n- AI initially suggested: %s\n- Users preferred: %s (%.0f%% of corrections)\n- Learning: In similar scenarios, favor %s over %s",
				p.Count, p.From, p.To, pct, p.To, p.From))
		case PatternOrderSizeThreshold:
			out = append(out, fmt.Sprintf(
				"Example (based on %d user corrections):\n- Order size: ~%.0f shares\n- User preference: %s\n- Learning: Orders around this size should use %s",
				p.Count, p.AvgQuantity, p.Strategy, p.Strategy))
		}
	}
	return out
}

// ComposePrompt 在现有模板上叠加模式总结与少样本,并保证 JSON 锚句收尾。
func ComposePrompt(current string, analysis Analysis, examples []string) string {
	var b strings.Builder

	base := current
	anchorIdx := strings.LastIndex(current, jsonAnchor)
	var tail string
	if anchorIdx >= 0 {
		// 锚句及其后的格式说明挪到最后,学到的内容插在它前面
		base = current[:anchorIdx]
		tail = current[anchorIdx:]
	}
	b.WriteString(strings.TrimRight(base, "\n"))
	b.WriteString("\n")

	if len(analysis.Patterns) > 0 {
		b.WriteString("\nLearned desk preferences (from recent trader corrections):\n")
		for _, p := range analysis.Patterns {
			b.WriteString("- ")
			b.WriteString(p.Description)
			b.WriteString("\n")
		}
	}
	if len(examples) > 0 {
		b.WriteString("\nExamples from trader corrections:\n")
		for _, ex := range examples {
			b.WriteString(ex)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if tail != "" {
		b.WriteString(strings.TrimSpace(tail))
		b.WriteString("\n")
	} else {
		b.WriteString(jsonAnchor + ` in this exact format:
{"suggested_strategy": "TWAP", "market_impact_risk": "LOW", "reasoning": "one sentence explaining the choice", "warnings": []}
`)
	}
	return b.String()
}
