// Package refdata 提供静态证券参考数据：基础信息、ADV/波动率市场上下文、
// 以及用于行为分析的交易员历史。数据来自 YAML 文件，未配置时使用内置表。
package refdata

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// 未知 symbol 的兜底市场上下文。
const (
	DefaultADV        = 1_000_000
	DefaultVolatility = "MEDIUM"
)

type Security struct {
	Symbol   string  `yaml:"symbol" json:"symbol"`
	Market   string  `yaml:"market" json:"market"`
	Currency string  `yaml:"currency" json:"currency"`
	Name     string  `yaml:"name" json:"name"`
	Price    float64 `yaml:"price" json:"price"`
}

// MarketContext 是策略推荐的市场侧输入。
type MarketContext struct {
	ADV        float64 `yaml:"adv" json:"adv"`
	Volatility string  `yaml:"volatility" json:"volatility"`
}

// Trade 是交易员历史中的一条成交记录。
type Trade struct {
	Symbol     string `yaml:"symbol" json:"symbol"`
	Strategy   string `yaml:"strategy" json:"strategy"`
	Side       string `yaml:"side" json:"side"`
	Quantity   int64  `yaml:"quantity" json:"quantity"`
	TIF        string `yaml:"tif" json:"tif"`
	Volatility string `yaml:"volatility" json:"volatility"`
	DaysAgo    int    `yaml:"days_ago" json:"days_ago"`
}

type tableFile struct {
	Securities []Security               `yaml:"securities"`
	Market     map[string]MarketContext `yaml:"market"`
	History    []Trade                  `yaml:"history"`
}

// Table 是解析后的只读参考表。
type Table struct {
	securities map[string]Security
	order      []string
	market     map[string]MarketContext
	history    []Trade
}

// Load 读取 YAML 参考表；path 为空时加载内置默认表。
func Load(path string) (*Table, error) {
	data := defaultsYAML
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read refdata file failed: %w", err)
		}
		data = b
	}
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse refdata failed: %w", err)
	}
	t := &Table{
		securities: make(map[string]Security, len(file.Securities)),
		market:     make(map[string]MarketContext, len(file.Market)),
		history:    file.History,
	}
	for _, sec := range file.Securities {
		sym := strings.ToUpper(strings.TrimSpace(sec.Symbol))
		if sym == "" {
			continue
		}
		sec.Symbol = sym
		if _, dup := t.securities[sym]; !dup {
			t.order = append(t.order, sym)
		}
		t.securities[sym] = sec
	}
	for sym, ctx := range file.Market {
		t.market[strings.ToUpper(strings.TrimSpace(sym))] = ctx
	}
	return t, nil
}

// Security 按 symbol 查询基础信息。
func (t *Table) Security(symbol string) (Security, bool) {
	sec, ok := t.securities[strings.ToUpper(strings.TrimSpace(symbol))]
	return sec, ok
}

// Securities 返回全部证券，按文件出现顺序。
func (t *Table) Securities() []Security {
	out := make([]Security, 0, len(t.order))
	for _, sym := range t.order {
		out = append(out, t.securities[sym])
	}
	return out
}

// Symbols 返回已知 symbol 列表（解析器用它做关键词匹配）。
func (t *Table) Symbols() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// MarketContext 查询市场上下文；未知 symbol 返回兜底值，永不报错。
func (t *Table) MarketContext(symbol string) MarketContext {
	if ctx, ok := t.market[strings.ToUpper(strings.TrimSpace(symbol))]; ok {
		return ctx
	}
	return MarketContext{ADV: DefaultADV, Volatility: DefaultVolatility}
}

// History 返回该 symbol 最近的至多 limit 条成交；没有时退回整体历史。
func (t *Table) History(symbol string, limit int) []Trade {
	if limit <= 0 {
		limit = 5
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	var matched []Trade
	for _, tr := range t.history {
		if strings.EqualFold(tr.Symbol, sym) {
			matched = append(matched, tr)
		}
	}
	if len(matched) == 0 {
		matched = t.history
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}
