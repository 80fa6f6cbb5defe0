package mcpsrv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"ordermind/internal/correction"
	"ordermind/internal/parser"
	"ordermind/internal/policy"
	"ordermind/internal/provider"
	"ordermind/internal/refdata"
	"ordermind/internal/strategy"
)

func newTestServer(t *testing.T) (*Server, *correction.Store) {
	t.Helper()
	table, err := refdata.Load("")
	require.NoError(t, err)
	cs := correction.NewStore(filepath.Join(t.TempDir(), "corrections"))
	ps := policy.NewStore(t.TempDir(), 0)
	return New(Deps{
		Recommender: strategy.NewRecommender(provider.Disabled(), ps, table, 0.3, nil),
		Parser:      parser.NewOrderParser(provider.Disabled(), table),
		Corrections: cs,
		Table:       table,
	}), cs
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) string {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestSmartSuggestionTool(t *testing.T) {
	s, _ := newTestServer(t)
	out := call(t, s.handleSmartSuggestion, map[string]any{
		"security": "AAPL",
		"quantity": float64(5_000_000),
	})
	assert.Equal(t, "VWAP", gjson.Get(out, "suggested_strategy").String())
	assert.Equal(t, "MODERATE", gjson.Get(out, "market_impact_risk").String())

	missing := call(t, s.handleSmartSuggestion, map[string]any{"security": "AAPL"})
	assert.Contains(t, missing, "error:")
}

func TestParseOrderTool(t *testing.T) {
	s, _ := newTestServer(t)
	out := call(t, s.handleParseOrder, map[string]any{"text": "sell 2k MSFT for the day"})
	assert.Equal(t, "MSFT", gjson.Get(out, "security").String())
	assert.Equal(t, "SELL", gjson.Get(out, "side").String())
	assert.Equal(t, "DAY", gjson.Get(out, "time_in_force").String())
}

func TestParseTraderTextTool(t *testing.T) {
	s, _ := newTestServer(t)
	out := call(t, s.handleParseTraderText, map[string]any{"text": "work 10000 TSLA with VWAP"})
	assert.Equal(t, "order", gjson.Get(out, "intent").String())
	assert.Equal(t, "VWAP", gjson.Get(out, "strategy").String())
}

func TestSecurityTools(t *testing.T) {
	s, _ := newTestServer(t)

	all := call(t, s.handleGetSecurities, nil)
	assert.EqualValues(t, 6, gjson.Get(all, "securities.#").Int())

	one := call(t, s.handleGetSecurity, map[string]any{"symbol": "tsla"})
	assert.Equal(t, "Tesla Inc.", gjson.Get(one, "security.name").String())
	assert.EqualValues(t, 88_000_000, gjson.Get(one, "market.adv").Int())

	unknown := call(t, s.handleGetSecurity, map[string]any{"symbol": "ZZZZ"})
	assert.Contains(t, unknown, "error: unknown security ZZZZ")
}

func TestAutocompleteTool(t *testing.T) {
	s, _ := newTestServer(t)
	out := call(t, s.handleAutocomplete, map[string]any{"prefix": "ne"})
	assert.Equal(t, "NESN", gjson.Get(out, "matches.0.symbol").String())

	empty := call(t, s.handleAutocomplete, map[string]any{"prefix": "x"})
	assert.EqualValues(t, 0, gjson.Get(empty, "matches.#").Int())
}

func TestCaptureCorrectionTool(t *testing.T) {
	s, cs := newTestServer(t)
	out := call(t, s.handleCaptureCorrection, map[string]any{
		"interaction_id":     "mcp-7",
		"security":           "aapl",
		"quantity":           float64(5000),
		"suggested_strategy": "TWAP",
		"corrected_strategy": "VWAP",
		"reason":             "too much impact",
	})
	assert.True(t, gjson.Get(out, "success").Bool())
	assert.Contains(t, gjson.Get(out, "filepath").String(), "mcp-7.json")
	assert.NotEmpty(t, gjson.Get(out, "message").String())

	recs, err := cs.Load(30)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "mcp-7", recs[0].InteractionID)
	assert.Equal(t, "AAPL", recs[0].Security())
	assert.Equal(t, "VWAP", recs[0].CorrectedStrategy())
}
