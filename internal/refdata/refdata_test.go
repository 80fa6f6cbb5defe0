package refdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	tbl, err := Load("")
	require.NoError(t, err)

	sec, ok := tbl.Security("aapl")
	require.True(t, ok)
	assert.Equal(t, "AAPL", sec.Symbol)
	assert.Equal(t, "NASDAQ", sec.Market)

	ctx := tbl.MarketContext("AAPL")
	assert.Equal(t, float64(52_000_000), ctx.ADV)
	assert.Equal(t, "LOW", ctx.Volatility)

	assert.Len(t, tbl.Securities(), 6)
}

func TestMarketContext_UnknownSymbolFallsBack(t *testing.T) {
	tbl, err := Load("")
	require.NoError(t, err)

	ctx := tbl.MarketContext("ZZZZ")
	assert.Equal(t, float64(DefaultADV), ctx.ADV)
	assert.Equal(t, DefaultVolatility, ctx.Volatility)
}

func TestHistory_SymbolSpecificThenFallback(t *testing.T) {
	tbl, err := Load("")
	require.NoError(t, err)

	aapl := tbl.History("AAPL", 5)
	require.Len(t, aapl, 2)
	for _, tr := range aapl {
		assert.Equal(t, "AAPL", tr.Symbol)
	}

	// 没有专属历史时返回整体历史的前 limit 条
	generic := tbl.History("ZZZZ", 3)
	assert.Len(t, generic, 3)
}

func TestLoad_CustomFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.yaml")
	body := `
securities:
  - { symbol: ubsg, market: SIX, currency: CHF, name: UBS Group AG, price: 26.10 }
market:
  UBSG: { adv: 9000000, volatility: MEDIUM }
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	tbl, err := Load(path)
	require.NoError(t, err)
	sec, ok := tbl.Security("UBSG")
	require.True(t, ok)
	assert.Equal(t, "UBSG", sec.Symbol)
	assert.Equal(t, float64(9_000_000), tbl.MarketContext("ubsg").ADV)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
