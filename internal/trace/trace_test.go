package trace

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordermind/internal/strategy"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "traces.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func emit(t *testing.T, s *Store) string {
	t.Helper()
	id := s.EmitSuggestion(context.Background(),
		strategy.Order{Security: "AAPL", Quantity: 5000, TimeInForce: "GTC"},
		strategy.Suggestion{Strategy: strategy.VWAP, Risk: strategy.RiskModerate, Source: strategy.SourceLLM, PromptVersion: 2})
	require.NotEmpty(t, id)
	return id
}

func TestStore_EmitAndReward(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := emit(t, s)

	n, err := s.TrainingReadyCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "unrewarded spans are not training-ready")

	require.NoError(t, s.RecordCorrected(ctx, id))
	n, err = s.TrainingReadyCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	spans, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, id, span.RolloutID)
	assert.Equal(t, "AAPL", span.Security)
	assert.Equal(t, strategy.VWAP, span.Strategy)
	assert.Equal(t, 2, span.PromptVersion)
	require.NotNil(t, span.Reward)
	assert.Equal(t, RewardCorrected, *span.Reward)
	assert.NotNil(t, span.RewardedAt)
	assert.Contains(t, string(span.Payload), `"suggestion"`)
}

func TestStore_AcceptedReward(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := emit(t, s)
	require.NoError(t, s.RecordAccepted(ctx, id))

	spans, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, spans[0].Reward)
	assert.Equal(t, RewardAccepted, *spans[0].Reward)
}

func TestStore_RewardUnknownRollout(t *testing.T) {
	s := newTestStore(t)
	err := s.RecordAccepted(context.Background(), "no-such-rollout")
	assert.Error(t, err)
}

func TestStore_ReadyForTraining(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < MinTrainingSpans; i++ {
		id := emit(t, s)
		if i%2 == 0 {
			require.NoError(t, s.RecordAccepted(ctx, id))
		} else {
			require.NoError(t, s.RecordCorrected(ctx, id))
		}
	}
	ready, n, err := s.ReadyForTraining(ctx)
	require.NoError(t, err)
	assert.True(t, ready)
	assert.EqualValues(t, MinTrainingSpans, n)
}
