package parser

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"ordermind/internal/logger"
	"ordermind/internal/pkg/jsonutil"
	"ordermind/internal/provider"
)

// Interpretation 是对一段交易员自由文本的整体理解:
// 订单要素之外还带显式提到的策略与意图。
type Interpretation struct {
	Intent   string      `json:"intent"`
	Order    ParsedOrder `json:"order"`
	Strategy string      `json:"strategy,omitempty"`
	Notes    string      `json:"notes,omitempty"`
}

const (
	IntentOrder   = "order"
	IntentInquiry = "inquiry"
	IntentUnknown = "unknown"
)

const traderTextPrompt = `Interpret this trading desk message. Reply with ONLY a JSON object:
{"intent": "order|inquiry|unknown", "security": "SYMBOL", "quantity": 100, "side": "BUY|SELL",
 "time_in_force": "DAY|GTC|GTD|FOK", "strategy": "TWAP|VWAP|POV|MOC or null", "notes": "short summary"}
Use null for anything not mentioned.

Message: `

var strategyKeywords = []string{"VWAP", "TWAP", "POV", "MOC"}

// InterpretTraderText 理解自由文本。模型不可用时按关键词回退,
// 回退路径的意图判断:带数量或方向词算下单,带问号算询问。
func (p *OrderParser) InterpretTraderText(ctx context.Context, text string) Interpretation {
	if p.model != nil && p.model.Enabled() {
		if in, ok := p.interpretWithModel(ctx, text); ok {
			return in
		}
	}
	return p.interpretByKeywords(text)
}

func (p *OrderParser) interpretWithModel(ctx context.Context, text string) (Interpretation, bool) {
	out, err := p.model.Complete(ctx, provider.ChatPayload{User: traderTextPrompt + text, Temperature: 0})
	if err != nil {
		logger.Warnf("[parser] trader text interpretation failed, using keyword fallback: %v", err)
		return Interpretation{}, false
	}
	raw, ok := jsonutil.ExtractObject(out)
	if !ok {
		return Interpretation{}, false
	}
	intent := strings.ToLower(gjson.Get(raw, "intent").String())
	switch intent {
	case IntentOrder, IntentInquiry:
	default:
		intent = IntentUnknown
	}
	in := Interpretation{
		Intent:   intent,
		Strategy: strings.ToUpper(gjson.Get(raw, "strategy").String()),
		Notes:    gjson.Get(raw, "notes").String(),
		Order: p.enrich(ParsedOrder{
			Security:    strings.ToUpper(gjson.Get(raw, "security").String()),
			Side:        strings.ToUpper(gjson.Get(raw, "side").String()),
			TimeInForce: strings.ToUpper(gjson.Get(raw, "time_in_force").String()),
			Source:      SourceLLM,
		}),
	}
	if q := gjson.Get(raw, "quantity"); q.Type == gjson.Number {
		in.Order.Quantity = decimal.NewFromFloat(q.Float())
	}
	return in, true
}

func (p *OrderParser) interpretByKeywords(text string) Interpretation {
	order := p.enrich(p.fromRegex(text))
	in := Interpretation{Order: order, Intent: IntentUnknown}

	upper := strings.ToUpper(text)
	for _, kw := range strategyKeywords {
		if containsWord(upper, kw) {
			in.Strategy = kw
			break
		}
	}

	switch {
	case buyRe.MatchString(text) || sellRe.MatchString(text):
		in.Intent = IntentOrder
	case strings.Contains(text, "?"):
		in.Intent = IntentInquiry
	case order.Security != "" && !order.Quantity.IsZero():
		in.Intent = IntentOrder
	}
	return in
}

func containsWord(upper, word string) bool {
	idx := strings.Index(upper, word)
	for idx >= 0 {
		before := idx == 0 || !isWordByte(upper[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(upper) || !isWordByte(upper[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(upper[idx+1:], word)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
