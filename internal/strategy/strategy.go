// Package strategy 为订单生成执行策略建议:优先走 LLM 提示词,
// 模型不可用或输出不合法时回退到确定性的 ADV 分档规则。
package strategy

// 支持的执行策略与市场冲击风险取值。
const (
	TWAP = "TWAP"
	VWAP = "VWAP"
	POV  = "POV"
	MOC  = "MOC"

	RiskLow      = "LOW"
	RiskModerate = "MODERATE"
	RiskHigh     = "HIGH"
)

// Order 是待推荐的订单。
type Order struct {
	Security    string  `json:"security"`
	Quantity    float64 `json:"quantity"`
	Side        string  `json:"side,omitempty"`
	TimeInForce string  `json:"time_in_force"`
}

// Context 是建议所依据的市场上下文,随建议一起返回。
type Context struct {
	ADV         float64 `json:"adv"`
	OrderPctADV float64 `json:"order_pct_adv"`
	Volatility  string  `json:"volatility"`
}

// Suggestion 是一次策略推荐的完整结果。
// Source 标明这次建议来自模型还是规则回退。
type Suggestion struct {
	Strategy        string   `json:"suggested_strategy"`
	Reasoning       string   `json:"reasoning"`
	Warnings        []string `json:"warnings"`
	Risk            string   `json:"market_impact_risk"`
	BehavioralNotes string   `json:"behavioral_notes,omitempty"`
	Context         Context  `json:"context"`
	Source          string   `json:"source"`
	PromptVersion   int      `json:"prompt_version,omitempty"`
	TraceID         string   `json:"trace_id,omitempty"`
}

const (
	SourceLLM   = "llm"
	SourceRules = "rules"
)

// ValidStrategy 判断取值是否在支持的策略集合内。
func ValidStrategy(s string) bool {
	switch s {
	case TWAP, VWAP, POV, MOC:
		return true
	}
	return false
}

// ValidRisk 判断取值是否在支持的风险等级集合内。
func ValidRisk(r string) bool {
	switch r {
	case RiskLow, RiskModerate, RiskHigh:
		return true
	}
	return false
}
