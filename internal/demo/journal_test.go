package demo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/perpdemo/pkg/persistence"
	"github.com/betbot/perpdemo/pkg/sdk/api"
)

func TestRunJournalsEveryTransaction(t *testing.T) {
	store, err := persistence.OpenBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := newHarness(t, func(m *mockSDK) {
		m.Orders = []api.Order{{ID: "o-1", Pair: api.Pair{ID: 1}, Index: 2}}
		m.Trades = []api.Trade{openTrade()}
	})
	WithJournal(store)(h.runner)

	require.NoError(t, h.runner.Run(context.Background()))

	records, err := LoadRun(store, h.runner.RunID())
	require.NoError(t, err)

	steps := make([]string, 0, len(records))
	for i, rec := range records {
		steps = append(steps, rec.Step)
		assert.Equal(t, i+1, rec.Seq)
		assert.Equal(t, h.runner.RunID(), rec.RunID)
		assert.NotEmpty(t, rec.TxHash)
	}
	assert.Equal(t, []string{
		StepOpenLimit, StepCancelLimit, StepOpenMarket, StepUpdateTP, StepUpdateSL, StepClose,
	}, steps)
	assert.Equal(t, uint8(2), records[1].Index)

	other, err := LoadRun(store, "another-run")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRunWithoutJournalSkipsRecording(t *testing.T) {
	h := newHarness(t, func(m *mockSDK) { m.Trades = []api.Trade{openTrade()} })
	require.NoError(t, h.runner.Run(context.Background()))
	assert.Zero(t, h.runner.seq)
}
