package climate

import (
	"context"
	"fmt"

	"ClimFinLedger/internal/engine"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// chanCopySource streams ledger rows into pgx.CopyFrom from a channel, so
// large runs never materialize a second [][]any copy.
type chanCopySource struct {
	ch   <-chan []any
	cur  []any
	err  error
	done bool
}

func (c *chanCopySource) Next() bool {
	if c.done {
		return false
	}
	row, ok := <-c.ch
	if !ok {
		c.done = true
		return false
	}
	c.cur = row
	return true
}

func (c *chanCopySource) Values() ([]any, error) { return c.cur, nil }

func (c *chanCopySource) Err() error { return c.err }

var ledgerColumns = []string{
	"run_id", "year", "provider_code", "agency_code", "recipient_code",
	"purpose_code", "project_id", "project_title", "finance_type",
	"flow_modality", "flow", "indicator", "value", "matched",
}

// PersistLedger bulk-inserts indicator rows for one run. Values are rounded
// to cents at the storage boundary; rows whose value is missing are kept in
// memory for reporting but never written.
func PersistLedger(ctx context.Context, pool *pgxpool.Pool, runID uuid.UUID, rows []engine.IndicatorRow) (int64, error) {
	if pool == nil {
		return 0, fmt.Errorf("ledger: no database pool configured")
	}

	ch := make(chan []any, 256)
	done := make(chan struct{})
	defer close(done)
	go streamLedgerRows(runID, rows, ch, done)

	n, err := pool.CopyFrom(ctx, pgx.Identifier{"climate_indicator_ledger"}, ledgerColumns, &chanCopySource{ch: ch})
	if err != nil {
		return n, fmt.Errorf("ledger copy: %w", err)
	}
	return n, nil
}

// streamLedgerRows feeds ledger rows into the copy channel. CopyFrom can
// stop reading early on error; the done channel unblocks the send so the
// producer never leaks.
func streamLedgerRows(runID uuid.UUID, rows []engine.IndicatorRow, ch chan<- []any, done <-chan struct{}) {
	defer close(ch)
	for _, r := range rows {
		if engine.IsNA(r.Value) {
			continue
		}
		value := decimal.NewFromFloat(r.Value).Round(2)
		row := []any{
			runID.String(), int(r.Year), r.ProviderCode, r.AgencyCode, r.RecipientCode,
			r.PurposeCode, r.ProjectID, r.ProjectTitle, r.FinanceType,
			r.FlowModality, r.Flow.String(), r.Indicator.String(), value, r.Matched,
		}
		select {
		case ch <- row:
		case <-done:
			return
		}
	}
}

// LedgerTotal sums persisted values for a run, for post-insert verification.
func LedgerTotal(ctx context.Context, pool *pgxpool.Pool, runID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(value), 0) FROM climate_indicator_ledger WHERE run_id = $1`,
		runID.String(),
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger total: %w", err)
	}
	return total, nil
}
