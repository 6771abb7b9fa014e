package climate

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"ClimFinLedger/internal/engine"
	"ClimFinLedger/internal/schema"

	"github.com/google/uuid"
)

// ClimateData sequences the reconciliation pipeline: source tables in,
// harmonized indicator ledger out. It owns in-memory snapshots of the loaded
// sources and the last produced ledger; the matching core itself never
// touches it.
type ClimateData struct {
	mu sync.RWMutex

	transactions  []engine.Transaction
	markers       []engine.Marker
	contributions []Contribution

	deflator Deflator
	channels ChannelMapper

	ledger              []engine.IndicatorRow
	residualMarkers     []engine.Marker
	residualTransaction []engine.Transaction
	lastRun             *RunSummary
}

// Contribution is one bilateral core contribution to a multilateral channel,
// input to the imputation workflow.
type Contribution struct {
	Year         int16   `json:"year"`
	ProviderCode string  `json:"provider_code"`
	ChannelCode  string  `json:"channel_code"`
	ChannelName  string  `json:"channel_name,omitempty"`
	Value        float64 `json:"value"`
}

// RunSummary reports what one pipeline run did.
type RunSummary struct {
	RunID                 uuid.UUID          `json:"run_id"`
	Preset                string             `json:"preset"`
	StartedAt             time.Time          `json:"started_at"`
	FinishedAt            time.Time          `json:"finished_at"`
	Transactions          int                `json:"transactions"`
	Markers               int                `json:"markers"`
	MatchedActivities     int                `json:"matched_activities"`
	MarkerAttributed      int                `json:"marker_attributed"`
	ResidualTransactions  int                `json:"residual_transactions"`
	ResidualMarkers       int                `json:"residual_markers"`
	LedgerRows            int                `json:"ledger_rows"`
	PersistedRows         int64              `json:"persisted_rows"`
	Passes                []engine.PassStats `json:"passes"`
	Warnings              []string           `json:"warnings,omitempty"`
	Currency              string             `json:"currency"`
	PriceBasis            string             `json:"price_basis"`
}

// NewClimateData wires the façade with its external collaborators. Both may
// be nil, in which case deflation is skipped and channel names stay
// unmapped.
func NewClimateData(deflator Deflator, channels ChannelMapper) *ClimateData {
	return &ClimateData{deflator: deflator, channels: channels}
}

// SetTransactions replaces the CRS snapshot.
func (cd *ClimateData) SetTransactions(txs []engine.Transaction) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.transactions = txs
}

// SetMarkers replaces the CRDF snapshot. When a channel mapper is wired,
// marker rows carrying only a channel name get their code resolved here, at
// the boundary, so the matching core sees complete rows.
func (cd *ClimateData) SetMarkers(markers []engine.Marker) {
	if cd.channels != nil {
		for i := range markers {
			if markers[i].ChannelCode == "" && markers[i].ChannelName != "" {
				code, err := cd.channels.Code(markers[i].ChannelName)
				if err != nil {
					log.Printf("[climate] channel %q not mapped: %v", markers[i].ChannelName, err)
					continue
				}
				markers[i].ChannelCode = code
			}
		}
	}
	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.markers = markers
}

// SetContributions replaces the multilateral core-contribution table.
func (cd *ClimateData) SetContributions(rows []Contribution) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.contributions = rows
}

// Run executes one reconciliation under the given preset and restates the
// ledger in the requested currency/price basis through the deflator.
//
// Composition: CRDF claims are matched against CRS transactions first;
// transactions left over that still carry Rio markers are attributed through
// the marker transform; the rest is aggregated as an unmatched residual so
// totals survive.
func (cd *ClimateData) Run(ctx context.Context, preset engine.Preset, currency schema.Currency, basis schema.PriceBasis) (*RunSummary, error) {
	matcher, err := preset.Matcher()
	if err != nil {
		return nil, err
	}
	transform, err := preset.RioTransform()
	if err != nil {
		return nil, err
	}

	cd.mu.RLock()
	txs := append([]engine.Transaction(nil), cd.transactions...)
	markers := append([]engine.Marker(nil), cd.markers...)
	cd.mu.RUnlock()

	summary := &RunSummary{
		RunID:      uuid.New(),
		Preset:     preset.Name,
		StartedAt:  time.Now(),
		Currency:   currency.String(),
		PriceBasis: basis.String(),
	}
	summary.Transactions = len(txs)
	summary.Markers = len(markers)

	result := matcher.Match(markers, txs)
	summary.MatchedActivities = len(result.Matched)
	summary.Passes = result.Diagnostics.Passes
	summary.Warnings = result.Diagnostics.Warnings

	rows := engine.ExpandAll(result.Matched)

	// Transactions the cascade never reached but that self-report a Rio
	// marker are still attributable; only the truly silent remainder becomes
	// the aggregate residual.
	var marked, silent []engine.Transaction
	for _, t := range result.UnmatchedTransactions {
		if t.AdaptationMarker > engine.MarkerMissing || t.MitigationMarker > engine.MarkerMissing {
			marked = append(marked, t)
		} else {
			silent = append(silent, t)
		}
	}
	markerRows := transform.ApplyAll(marked)
	summary.MarkerAttributed = len(marked)
	rows = append(rows, markerRows...)

	rows = append(rows, engine.AggregateUnmatched(silent)...)
	summary.ResidualTransactions = len(result.UnmatchedTransactions)
	summary.ResidualMarkers = len(result.UnmatchedMarkers)

	if cd.deflator != nil && (currency != schema.CurrencyUSD || basis != schema.PriceCurrent) {
		rows, err = deflateRows(ctx, cd.deflator, rows, currency, basis)
		if err != nil {
			return nil, fmt.Errorf("deflator: %w", err)
		}
	}

	summary.LedgerRows = len(rows)
	summary.FinishedAt = time.Now()

	cd.mu.Lock()
	cd.ledger = rows
	cd.residualMarkers = result.UnmatchedMarkers
	cd.residualTransaction = result.UnmatchedTransactions
	cd.lastRun = summary
	cd.mu.Unlock()

	log.Printf("[climate] run %s (%s): %d ledger rows, %d matched, %d residual txs",
		summary.RunID, preset.Name, summary.LedgerRows, summary.MatchedActivities, summary.ResidualTransactions)
	return summary, nil
}

// Ledger returns the last produced indicator rows, optionally filtered.
func (cd *ClimateData) Ledger(filter LedgerFilter) []engine.IndicatorRow {
	cd.mu.RLock()
	defer cd.mu.RUnlock()
	var out []engine.IndicatorRow
	for _, r := range cd.ledger {
		if filter.match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Residuals returns both unmatched residues of the last run.
func (cd *ClimateData) Residuals() ([]engine.Marker, []engine.Transaction) {
	cd.mu.RLock()
	defer cd.mu.RUnlock()
	return cd.residualMarkers, cd.residualTransaction
}

// LastRun returns the previous run summary, nil before the first run.
func (cd *ClimateData) LastRun() *RunSummary {
	cd.mu.RLock()
	defer cd.mu.RUnlock()
	return cd.lastRun
}

// LedgerFilter narrows ledger queries. Zero fields match everything.
type LedgerFilter struct {
	Year         int16
	ProviderCode string
	Indicator    *schema.Indicator
	MatchedOnly  bool
}

func (f LedgerFilter) match(r engine.IndicatorRow) bool {
	if f.Year != 0 && r.Year != f.Year {
		return false
	}
	if f.ProviderCode != "" && r.ProviderCode != f.ProviderCode {
		return false
	}
	if f.Indicator != nil && r.Indicator != *f.Indicator {
		return false
	}
	if f.MatchedOnly && !r.Matched {
		return false
	}
	return true
}
