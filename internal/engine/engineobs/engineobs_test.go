package engineobs

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

type stubEngine struct {
	res *types.StepResult
	err error
}

func (s stubEngine) Step(context.Context) (*types.StepResult, error) {
	return s.res, s.err
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, logger.InitWithConfig(logger.LogConfig{Level: "INFO", Format: "json", Output: &buf}))
	return &buf
}

func TestWrapLogsCompletedStep(t *testing.T) {
	buf := captureLogs(t)
	want := &types.StepResult{Index: 4, Open: 100, Close: 101, Decision: &types.Decision{Action: types.ActionHold, Reason: "flat"}}

	got, err := Wrap(stubEngine{res: want}).Step(context.Background())
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Contains(t, buf.String(), `"msg":"Bar step completed"`)
	assert.Contains(t, buf.String(), `"index":4`)
	assert.Contains(t, buf.String(), `"duration_ms"`)
}

func TestWrapLogsSessionComplete(t *testing.T) {
	buf := captureLogs(t)
	_, err := Wrap(stubEngine{res: &types.StepResult{Done: true, Index: 9}}).Step(context.Background())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"Session complete"`)
	assert.NotContains(t, buf.String(), "Bar step completed")
}

func TestWrapReportsFailedStep(t *testing.T) {
	buf := captureLogs(t)
	boom := errors.New("cursor out of sync")

	res, err := Wrap(stubEngine{err: boom}).Step(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, res)
	assert.Contains(t, buf.String(), `"msg":"Operation failed"`)
	assert.Contains(t, buf.String(), `"operation":"engine.Step"`)
}
