// Package parser 把交易员的自然语言输入解析成结构化订单。
// 有模型时走模型抽取,失败或关闭时回退到确定性的正则解析。
package parser

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"ordermind/internal/logger"
	"ordermind/internal/pkg/jsonutil"
	"ordermind/internal/provider"
	"ordermind/internal/refdata"
)

// ParsedOrder 是解析结果。缺省值:数量 100、方向 BUY、TIF DAY。
type ParsedOrder struct {
	Security    string           `json:"security"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Side        string           `json:"side"`
	TimeInForce string           `json:"time_in_force"`
	LimitPrice  *decimal.Decimal `json:"limit_price,omitempty"`
	Resolved    bool             `json:"resolved"`
	Detail      *refdata.Security `json:"detail,omitempty"`
	Source      string           `json:"source"`
}

const (
	DefaultQuantity = 100
	DefaultSide     = "BUY"
	DefaultTIF      = "DAY"

	SourceLLM   = "llm"
	SourceRegex = "regex"
)

var (
	qtyRe   = regexp.MustCompile(`(?i)\b(\d+(?:[.,]\d+)*)\s*(k|m)?\b`)
	priceRe = regexp.MustCompile(`(?i)(?:@|at)\s*\$?(\d+(?:\.\d+)?)`)
	sellRe  = regexp.MustCompile(`(?i)\b(sell|short|unload|dump)\b`)
	buyRe   = regexp.MustCompile(`(?i)\b(buy|purchase|acquire|long)\b`)
	symbolRe = regexp.MustCompile(`\b[A-Z]{2,6}\b`)
)

// 长词组在前,"good till date" 不能被 "good till" 截胡。
var tifKeywords = []struct{ kw, tif string }{
	{"good till date", "GTD"},
	{"good-till-date", "GTD"},
	{"gtd", "GTD"},
	{"gtc", "GTC"},
	{"good till", "GTC"},
	{"good-till", "GTC"},
	{"day order", "DAY"},
	{"for the day", "DAY"},
	{"today only", "DAY"},
	{"fok", "FOK"},
	{"fill or kill", "FOK"},
	{"fill-or-kill", "FOK"},
}

const orderParsePrompt = `Extract the order from this trader message. Reply with ONLY a JSON object:
{"security": "SYMBOL", "quantity": 100, "side": "BUY|SELL", "time_in_force": "DAY|GTC|GTD|FOK", "limit_price": null}
Use null for anything not mentioned.

Message: `

// OrderParser 组合模型抽取与正则回退。
type OrderParser struct {
	model provider.ModelProvider
	table *refdata.Table
}

func NewOrderParser(model provider.ModelProvider, table *refdata.Table) *OrderParser {
	return &OrderParser{model: model, table: table}
}

// Parse 解析一句下单指令。任何一步失败都回退到正则,永远给出结果。
func (p *OrderParser) Parse(ctx context.Context, text string) ParsedOrder {
	if p.model != nil && p.model.Enabled() {
		if order, ok := p.fromModel(ctx, text); ok {
			return p.enrich(order)
		}
	}
	return p.enrich(p.fromRegex(text))
}

func (p *OrderParser) fromModel(ctx context.Context, text string) (ParsedOrder, bool) {
	out, err := p.model.Complete(ctx, provider.ChatPayload{User: orderParsePrompt + text, Temperature: 0})
	if err != nil {
		logger.Warnf("[parser] order extraction failed, using regex fallback: %v", err)
		return ParsedOrder{}, false
	}
	raw, ok := jsonutil.ExtractObject(out)
	if !ok || !json.Valid([]byte(raw)) {
		logger.Warnf("[parser] no JSON in order extraction output")
		return ParsedOrder{}, false
	}
	order := ParsedOrder{
		Security:    strings.ToUpper(gjson.Get(raw, "security").String()),
		Side:        strings.ToUpper(gjson.Get(raw, "side").String()),
		TimeInForce: strings.ToUpper(gjson.Get(raw, "time_in_force").String()),
		Source:      SourceLLM,
	}
	if q := gjson.Get(raw, "quantity"); q.Exists() && q.Type == gjson.Number {
		order.Quantity = decimal.NewFromFloat(q.Float())
	}
	if lp := gjson.Get(raw, "limit_price"); lp.Exists() && lp.Type == gjson.Number {
		d := decimal.NewFromFloat(lp.Float())
		order.LimitPrice = &d
	}
	if order.Security == "" {
		return ParsedOrder{}, false
	}
	return order, true
}

// fromRegex 是确定性回退:从文本里抠数量、方向、TIF、限价与 symbol。
func (p *OrderParser) fromRegex(text string) ParsedOrder {
	order := ParsedOrder{Source: SourceRegex}

	if m := priceRe.FindStringSubmatch(text); m != nil {
		if d, err := decimal.NewFromString(m[1]); err == nil {
			order.LimitPrice = &d
		}
	}
	priceSpan := priceRe.FindStringIndex(text)

	for _, m := range qtyRe.FindAllStringSubmatchIndex(text, -1) {
		// 限价里的数字不当数量
		if priceSpan != nil && m[0] >= priceSpan[0] && m[1] <= priceSpan[1] {
			continue
		}
		numText := strings.ReplaceAll(text[m[2]:m[3]], ",", "")
		d, err := decimal.NewFromString(numText)
		if err != nil {
			continue
		}
		if m[4] >= 0 {
			switch strings.ToLower(text[m[4]:m[5]]) {
			case "k":
				d = d.Mul(decimal.NewFromInt(1000))
			case "m":
				d = d.Mul(decimal.NewFromInt(1_000_000))
			}
		}
		order.Quantity = d
		break
	}

	if sellRe.MatchString(text) {
		order.Side = "SELL"
	} else if buyRe.MatchString(text) {
		order.Side = "BUY"
	}

	lower := strings.ToLower(text)
	for _, e := range tifKeywords {
		if strings.Contains(lower, e.kw) {
			order.TimeInForce = e.tif
			break
		}
	}

	order.Security = p.findSymbol(text)
	return order
}

// findSymbol 优先匹配已知证券表里的 symbol,再退回任意大写 token。
func (p *OrderParser) findSymbol(text string) string {
	upper := strings.ToUpper(text)
	for _, sym := range p.table.Symbols() {
		if regexp.MustCompile(`\b` + sym + `\b`).MatchString(upper) {
			return sym
		}
	}
	for _, tok := range symbolRe.FindAllString(text, -1) {
		if !reservedWords[tok] {
			return tok
		}
	}
	return ""
}

// 正则会把普通大写词误认成 symbol,常见指令词排除掉。
var reservedWords = map[string]bool{
	"BUY": true, "SELL": true, "GTC": true, "DAY": true, "GTD": true, "FOK": true,
	"TWAP": true, "VWAP": true, "POV": true, "MOC": true,
	"ADV": true, "AT": true, "FOR": true, "THE": true, "AND": true, "OF": true,
	"SHARES": true, "ORDER": true, "LIMIT": true, "MARKET": true,
}

// enrich 补默认值并挂上证券主数据。
func (p *OrderParser) enrich(order ParsedOrder) ParsedOrder {
	if order.Quantity.IsZero() {
		order.Quantity = decimal.NewFromInt(DefaultQuantity)
	}
	if order.Side == "" {
		order.Side = DefaultSide
	}
	if order.TimeInForce == "" {
		order.TimeInForce = DefaultTIF
	}
	if sec, ok := p.table.Security(order.Security); ok {
		order.Resolved = true
		order.Detail = &sec
	}
	return order
}
