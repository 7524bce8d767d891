package llmobs

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"llm-paper-trader/internal/logger"
	"llm-paper-trader/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDecider struct {
	d   types.Decision
	err error
}

func (s stubDecider) Decide(context.Context, types.DecisionRequest) (types.Decision, error) {
	return s.d, s.err
}

func TestWrapPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logger.InitWithConfig(logger.LogConfig{Level: "INFO", Format: "json", Output: &buf}))

	want := types.Decision{Action: types.ActionBuy, Qty: 3, Reason: "x"}
	got, err := Wrap(stubDecider{d: want}).Decide(context.Background(), types.DecisionRequest{Symbol: "ABC"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Contains(t, buf.String(), `"msg":"Trading decision received"`)
	assert.Contains(t, buf.String(), `"symbol":"ABC"`)
}

func TestWrapPropagatesError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logger.InitWithConfig(logger.LogConfig{Level: "INFO", Format: "json", Output: &buf}))

	boom := errors.New("upstream down")
	_, err := Wrap(stubDecider{err: boom}).Decide(context.Background(), types.DecisionRequest{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), `"msg":"Operation failed"`)
	assert.Contains(t, buf.String(), `"operation":"llm.Decide"`)
	assert.Contains(t, buf.String(), "upstream down")
}

func TestWrapTimesDecisionsInDebugMode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logger.InitWithConfig(logger.LogConfig{Level: "DEBUG", Format: "json", DetailedLogging: true, Output: &buf}))
	t.Cleanup(func() {
		require.NoError(t, logger.InitWithConfig(logger.LogConfig{Level: "INFO", Format: "json", Output: &bytes.Buffer{}}))
	})

	_, err := Wrap(stubDecider{d: types.Hold("flat")}).Decide(context.Background(), types.DecisionRequest{Symbol: "ABC"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"Operation started"`)
	assert.Contains(t, buf.String(), `"msg":"Operation completed"`)
	assert.Contains(t, buf.String(), `"duration_ms"`)
}
