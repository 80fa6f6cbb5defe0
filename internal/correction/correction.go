// Package correction 持久化交易员对模型建议的人工纠正。
// 每条纠正落成 <root>/<YYYY-MM-DD>/<interaction_id>.json,按天分片便于窗口式回放。
package correction

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

const TypeStrategySuggestion = "strategy_suggestion"

// Meta 标注纠正类别与当时生效的提示词版本。
type Meta struct {
	CorrectionType string `json:"correction_type"`
	Version        string `json:"version"`
}

// Record 是一条完整的纠正。订单输入、建议与纠正内容都保持原始 JSON:
// 调用方传什么字段就存什么字段,不对策略名做枚举校验。
type Record struct {
	InteractionID  string          `json:"interaction_id"`
	Timestamp      time.Time       `json:"timestamp"`
	Input          json.RawMessage `json:"input"`
	AISuggestion   json.RawMessage `json:"ai_suggestion"`
	UserCorrection json.RawMessage `json:"user_correction"`
	Metadata       Meta            `json:"metadata"`
}

// SuggestedStrategy 返回模型建议里的 strategy 字段,缺失时为空串。
func (r Record) SuggestedStrategy() string {
	return rawField(r.AISuggestion, "strategy")
}

// CorrectedStrategy 返回交易员纠正里的 strategy 字段,缺失时为空串。
func (r Record) CorrectedStrategy() string {
	return rawField(r.UserCorrection, "strategy")
}

// Security 返回订单输入里的 security 字段,缺失时为空串。
func (r Record) Security() string {
	return rawField(r.Input, "security")
}

// Quantity 返回订单输入里的 quantity 数值。第二返回值表示字段是否为数值。
func (r Record) Quantity() (float64, bool) {
	if len(r.Input) == 0 {
		return 0, false
	}
	q := gjson.GetBytes(r.Input, "quantity")
	if q.Type != gjson.Number {
		return 0, false
	}
	return q.Float(), true
}

func rawField(raw json.RawMessage, key string) string {
	if len(raw) == 0 {
		return ""
	}
	return gjson.GetBytes(raw, key).String()
}
