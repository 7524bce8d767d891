package noop

import (
	"context"
	"testing"

	"llm-paper-trader/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlwaysHolds(t *testing.T) {
	d, err := NewNoopDecider().Decide(context.Background(), types.DecisionRequest{Symbol: "X", Open: 10})
	require.NoError(t, err)
	assert.Equal(t, types.ActionHold, d.Action)
	assert.Zero(t, d.Qty)
	assert.Equal(t, Source, d.Source)
}
