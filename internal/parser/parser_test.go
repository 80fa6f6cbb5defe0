package parser

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordermind/internal/provider"
	"ordermind/internal/refdata"
)

type fakeModel struct {
	out     string
	err     error
	enabled bool
}

func (f *fakeModel) ID() string    { return "fake" }
func (f *fakeModel) Enabled() bool { return f.enabled }
func (f *fakeModel) Complete(context.Context, provider.ChatPayload) (string, error) {
	return f.out, f.err
}

func newTestParser(t *testing.T, model provider.ModelProvider) *OrderParser {
	t.Helper()
	table, err := refdata.Load("")
	require.NoError(t, err)
	return NewOrderParser(model, table)
}

func TestParse_RegexFallback(t *testing.T) {
	p := newTestParser(t, provider.Disabled())

	cases := []struct {
		text     string
		security string
		quantity int64
		side     string
		tif      string
	}{
		{"buy 5000 AAPL gtc", "AAPL", 5000, "BUY", "GTC"},
		{"sell 2k MSFT for the day", "MSFT", 2000, "SELL", "DAY"},
		{"purchase 1.5m TSLA", "TSLA", 1500000, "BUY", "DAY"},
		{"unload 300 GOOGL fill or kill", "GOOGL", 300, "SELL", "FOK"},
		{"buy 400 NOVN good till date", "NOVN", 400, "BUY", "GTD"},
		{"AAPL order please", "AAPL", 100, "BUY", "DAY"}, // 全默认
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got := p.Parse(context.Background(), tc.text)
			assert.Equal(t, tc.security, got.Security)
			assert.True(t, got.Quantity.Equal(decimal.NewFromInt(tc.quantity)),
				"quantity %s != %d", got.Quantity, tc.quantity)
			assert.Equal(t, tc.side, got.Side)
			assert.Equal(t, tc.tif, got.TimeInForce)
			assert.Equal(t, SourceRegex, got.Source)
		})
	}
}

func TestParse_LimitPriceNotMistakenForQuantity(t *testing.T) {
	p := newTestParser(t, provider.Disabled())
	got := p.Parse(context.Background(), "buy 500 NOVN at 95.20")
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(500)))
	require.NotNil(t, got.LimitPrice)
	assert.True(t, got.LimitPrice.Equal(decimal.RequireFromString("95.20")))
}

func TestParse_KnownSecurityEnriched(t *testing.T) {
	p := newTestParser(t, provider.Disabled())
	got := p.Parse(context.Background(), "buy 100 NESN")
	assert.True(t, got.Resolved)
	require.NotNil(t, got.Detail)
	assert.Equal(t, "Nestle S.A.", got.Detail.Name)
	assert.Equal(t, "CHF", got.Detail.Currency)

	unknown := p.Parse(context.Background(), "buy 100 ZZXX")
	assert.Equal(t, "ZZXX", unknown.Security)
	assert.False(t, unknown.Resolved)
	assert.Nil(t, unknown.Detail)
}

func TestParse_ModelPath(t *testing.T) {
	m := &fakeModel{enabled: true, out: `{"security":"aapl","quantity":250,"side":"sell","time_in_force":"day","limit_price":180.5}`}
	p := newTestParser(t, m)
	got := p.Parse(context.Background(), "get rid of a little apple")
	assert.Equal(t, "AAPL", got.Security)
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, "SELL", got.Side)
	assert.Equal(t, "DAY", got.TimeInForce)
	require.NotNil(t, got.LimitPrice)
	assert.Equal(t, SourceLLM, got.Source)
	assert.True(t, got.Resolved)
}

func TestParse_ModelGarbageFallsBackToRegex(t *testing.T) {
	m := &fakeModel{enabled: true, out: "sorry, I cannot help with that"}
	p := newTestParser(t, m)
	got := p.Parse(context.Background(), "buy 700 MSFT")
	assert.Equal(t, SourceRegex, got.Source)
	assert.Equal(t, "MSFT", got.Security)
}

func TestInterpretTraderText_KeywordFallback(t *testing.T) {
	p := newTestParser(t, provider.Disabled())

	in := p.InterpretTraderText(context.Background(), "work 10000 TSLA with VWAP today only")
	assert.Equal(t, IntentOrder, in.Intent)
	assert.Equal(t, "VWAP", in.Strategy)
	assert.Equal(t, "TSLA", in.Order.Security)
	assert.Equal(t, "DAY", in.Order.TimeInForce)

	inquiry := p.InterpretTraderText(context.Background(), "what is the ADV on NOVN?")
	assert.Equal(t, IntentInquiry, inquiry.Intent)
	assert.Empty(t, inquiry.Strategy)
}

func TestInterpretTraderText_ModelPath(t *testing.T) {
	m := &fakeModel{enabled: true, out: "```json\n{\"intent\":\"order\",\"security\":\"GOOGL\",\"quantity\":300,\"side\":\"SELL\",\"time_in_force\":\"GTC\",\"strategy\":\"POV\",\"notes\":\"participate with volume\"}\n```"}
	p := newTestParser(t, m)
	in := p.InterpretTraderText(context.Background(), "lighten up on alphabet, go with the flow")
	assert.Equal(t, IntentOrder, in.Intent)
	assert.Equal(t, "POV", in.Strategy)
	assert.Equal(t, "GOOGL", in.Order.Security)
	assert.Equal(t, "participate with volume", in.Notes)
}

func TestAutocomplete(t *testing.T) {
	table, err := refdata.Load("")
	require.NoError(t, err)

	got := Autocomplete(table, "no")
	require.Len(t, got, 1)
	assert.Equal(t, "NOVN", got[0].Symbol)

	byName := Autocomplete(table, "apple")
	require.Len(t, byName, 1)
	assert.Equal(t, "AAPL", byName[0].Symbol)

	assert.Nil(t, Autocomplete(table, "a"), "single character prefix returns nothing")
	assert.Empty(t, Autocomplete(table, "qq"))
}
