package climate

import (
	"testing"
	"time"

	"ClimFinLedger/internal/engine"
	"ClimFinLedger/internal/schema"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgerRows(n int) []engine.IndicatorRow {
	rows := make([]engine.IndicatorRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, engine.IndicatorRow{
			Year:         2020,
			ProviderCode: "1",
			Flow:         schema.FlowCommitment,
			Indicator:    schema.IndicatorAdaptation,
			Value:        float64(i) + 0.125,
			Matched:      true,
		})
	}
	return rows
}

func TestStreamLedgerRowsDrainsAndRounds(t *testing.T) {
	ch := make(chan []any, 4)
	done := make(chan struct{})
	go streamLedgerRows(uuid.New(), ledgerRows(3), ch, done)

	var got [][]any
	for row := range ch {
		got = append(got, row)
	}
	require.Len(t, got, 3)
	assert.True(t, decimal.NewFromFloat(0.13).Equal(got[0][12].(decimal.Decimal)))
}

func TestStreamLedgerRowsSkipsMissingValues(t *testing.T) {
	rows := ledgerRows(2)
	rows[0].Value = engine.NA()

	ch := make(chan []any, 4)
	go streamLedgerRows(uuid.New(), rows, ch, make(chan struct{}))

	var got [][]any
	for row := range ch {
		got = append(got, row)
	}
	require.Len(t, got, 1)
}

func TestStreamLedgerRowsStopsWhenConsumerQuits(t *testing.T) {
	ch := make(chan []any, 1)
	done := make(chan struct{})
	go streamLedgerRows(uuid.New(), ledgerRows(1000), ch, done)

	// Read one row, then abandon the copy the way an erroring CopyFrom does.
	<-ch
	close(done)

	// The producer must close the channel instead of blocking on a send.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("producer still blocked after consumer quit")
		}
	}
}
