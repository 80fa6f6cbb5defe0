package correction

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func sampleRecord(security, suggested, corrected string) Record {
	return Record{
		Input:          json.RawMessage(`{"security":"` + security + `","quantity":5000,"side":"BUY","time_in_force":"DAY"}`),
		AISuggestion:   json.RawMessage(`{"strategy":"` + suggested + `","reasoning":"model pick"}`),
		UserCorrection: json.RawMessage(`{"strategy":"` + corrected + `"}`),
		Metadata:       Meta{Version: "v1"},
	}
}

func TestStore_CaptureLoadRoundtrip(t *testing.T) {
	s := NewStore(t.TempDir())

	saved, path, err := s.Capture(sampleRecord("AAPL", "TWAP", "VWAP"))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.InteractionID)
	assert.False(t, saved.Timestamp.IsZero())
	assert.Equal(t, TypeStrategySuggestion, saved.Metadata.CorrectionType)

	// 文件落在当天的日期目录下,返回的路径就是落盘位置
	day := saved.Timestamp.Format("2006-01-02")
	assert.Equal(t, filepath.Join(s.Root(), day, saved.InteractionID+".json"), path)
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)

	recs, err := s.Load(30)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	got := recs[0]
	assert.Equal(t, saved.InteractionID, got.InteractionID)
	assert.Equal(t, "AAPL", got.Security())
	assert.Equal(t, "TWAP", got.SuggestedStrategy())
	assert.Equal(t, "VWAP", got.CorrectedStrategy())
	assert.Equal(t, "v1", got.Metadata.Version)
	qty, ok := got.Quantity()
	assert.True(t, ok)
	assert.Equal(t, 5000.0, qty)
}

func TestStore_CaptureHonorsInteractionID(t *testing.T) {
	s := NewStore(t.TempDir())

	rec := sampleRecord("AAPL", "TWAP", "VWAP")
	rec.InteractionID = "trade-20260829-001"
	saved, path, err := s.Capture(rec)
	require.NoError(t, err)
	assert.Equal(t, "trade-20260829-001", saved.InteractionID)
	assert.Equal(t, "trade-20260829-001.json", filepath.Base(path))
}

// 落盘 JSON 的顶层键固定,下游按这些键回放。
func TestStore_PersistedSchema(t *testing.T) {
	s := NewStore(t.TempDir())

	rec := sampleRecord("NESN", "VWAP", "TWAP")
	rec.InteractionID = "schema-check"
	_, path, err := s.Capture(rec)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{"interaction_id", "timestamp", "input", "ai_suggestion", "user_correction", "metadata"} {
		assert.True(t, gjson.GetBytes(b, key).Exists(), "missing top-level key %q", key)
	}
	assert.Equal(t, "schema-check", gjson.GetBytes(b, "interaction_id").String())
	assert.Equal(t, "NESN", gjson.GetBytes(b, "input.security").String())
	assert.Equal(t, "VWAP", gjson.GetBytes(b, "ai_suggestion.strategy").String())
	assert.Equal(t, "TWAP", gjson.GetBytes(b, "user_correction.strategy").String())
	assert.Equal(t, TypeStrategySuggestion, gjson.GetBytes(b, "metadata.correction_type").String())
	// 老字段名不能再出现
	assert.False(t, gjson.GetBytes(b, "id").Exists())
	assert.False(t, gjson.GetBytes(b, "order").Exists())
	assert.False(t, gjson.GetBytes(b, "model_suggestion").Exists())
}

// 调用方的 input 是什么字段就存什么字段,不做结构化裁剪。
func TestStore_InputKeepsArbitraryFields(t *testing.T) {
	s := NewStore(t.TempDir())

	rec := sampleRecord("AAPL", "TWAP", "VWAP")
	rec.Input = json.RawMessage(`{"security":"AAPL","quantity":5000,"desk":"EQ-ZRH","urgency":"high"}`)
	_, path, err := s.Capture(rec)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "EQ-ZRH", gjson.GetBytes(b, "input.desk").String())
	assert.Equal(t, "high", gjson.GetBytes(b, "input.urgency").String())
}

func TestStore_LoadSkipsMalformed(t *testing.T) {
	s := NewStore(t.TempDir())
	_, _, err := s.Capture(sampleRecord("MSFT", "TWAP", "POV"))
	require.NoError(t, err)

	day := time.Now().UTC().Format("2006-01-02")
	bad := filepath.Join(s.Root(), day, "broken.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))

	recs, err := s.Load(30)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestStore_LoadWindow(t *testing.T) {
	s := NewStore(t.TempDir())

	// 窗口外的旧记录手工放到过期日期目录
	oldDay := time.Now().UTC().AddDate(0, 0, -60).Format("2006-01-02")
	oldDir := filepath.Join(s.Root(), oldDay)
	require.NoError(t, os.MkdirAll(oldDir, 0o755))
	oldRec := sampleRecord("TSLA", "VWAP", "TWAP")
	oldRec.InteractionID = "old"
	oldRec.Timestamp = time.Now().UTC().AddDate(0, 0, -60)
	b, _ := json.Marshal(oldRec)
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, "old.json"), b, 0o644))

	_, _, err := s.Capture(sampleRecord("AAPL", "TWAP", "VWAP"))
	require.NoError(t, err)

	recs, err := s.Load(30)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "AAPL", recs[0].Security())

	all, err := s.Load(0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	// 升序:旧的在前
	assert.Equal(t, "old", all[0].InteractionID)
}

func TestStore_LoadEmptyRoot(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing"))
	recs, err := s.Load(30)
	require.NoError(t, err)
	assert.Empty(t, recs)

	n, err := s.Count(30)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecord_PermissiveStrategies(t *testing.T) {
	s := NewStore(t.TempDir())
	rec := sampleRecord("NOVN", "TWAP", "ICEBERG-CUSTOM")
	saved, _, err := s.Capture(rec)
	require.NoError(t, err)
	assert.Equal(t, "ICEBERG-CUSTOM", saved.CorrectedStrategy())
}
