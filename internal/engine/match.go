package engine

import (
	"fmt"
	"log"
	"math"

	"ClimFinLedger/internal/config"
	"ClimFinLedger/internal/schema"
)

// Matcher runs the multi-pass reconciliation between CRDF climate claims and
// CRS transactions. It is a pure function of its inputs: no I/O, no shared
// state, deterministic output order.
type Matcher struct {
	keyConfigs         []KeyConfig
	duplicateTolerance float64
	implausibleCutoff  float64
	relaxYear          bool
}

// MatcherConfig is the policy surface of the matching engine. Zero values
// fall back to the published methodology constants.
type MatcherConfig struct {
	KeyConfigs             []KeyConfig
	DuplicateTolerance     float64
	ImplausibleShareCutoff float64
	RelaxYear              bool
}

// NewMatcher validates the configuration up front; nothing fails mid-pass.
func NewMatcher(cfg MatcherConfig) (*Matcher, error) {
	if len(cfg.KeyConfigs) == 0 {
		return nil, fmt.Errorf("matcher: at least one key configuration required")
	}
	for _, kc := range cfg.KeyConfigs {
		if err := kc.Validate(); err != nil {
			return nil, fmt.Errorf("matcher: %w", err)
		}
	}
	m := &Matcher{
		keyConfigs:         cfg.KeyConfigs,
		duplicateTolerance: cfg.DuplicateTolerance,
		implausibleCutoff:  cfg.ImplausibleShareCutoff,
		relaxYear:          cfg.RelaxYear,
	}
	if m.duplicateTolerance == 0 {
		m.duplicateTolerance = config.DuplicateCommitmentTolerance
	}
	if m.implausibleCutoff == 0 {
		m.implausibleCutoff = config.ImplausibleShareCutoff
	}
	if m.duplicateTolerance < 0 || m.implausibleCutoff <= 0 {
		return nil, fmt.Errorf("matcher: tolerance %v / cutoff %v out of range",
			m.duplicateTolerance, m.implausibleCutoff)
	}
	return m, nil
}

// PassStats records what one pass did, for match-quality auditing.
type PassStats struct {
	Name                  string
	Matched               int
	DuplicatesResolved    int
	DuplicatesDropped     int
	ImplausibleRejected   int
	MarkersRemaining      int
	TransactionsRemaining int
}

// Diagnostics is the non-fatal side channel of a match run.
type Diagnostics struct {
	Passes   []PassStats
	Warnings []string
}

// Result carries the matched set plus both residues. Unmatched transactions
// are input to the residual aggregator, never dropped.
type Result struct {
	Matched               []Match
	UnmatchedMarkers      []Marker
	UnmatchedTransactions []Transaction
	Diagnostics           Diagnostics
}

// markerGroup collapses duplicate marker rows sharing a key into one match
// candidate with summed monetary columns.
type markerGroup struct {
	key  string
	rows []int

	adaptation   float64
	mitigation   float64
	crossCutting float64
	climateShare float64
}

func (g *markerGroup) add(m *Marker) {
	g.adaptation = naSum(g.adaptation, m.AdaptationValue)
	g.mitigation = naSum(g.mitigation, m.MitigationValue)
	g.crossCutting = naSum(g.crossCutting, m.CrossCuttingValue)
	if IsNA(g.climateShare) && !IsNA(m.CommitmentClimateShare) {
		g.climateShare = m.CommitmentClimateShare
	}
}

// originalCommitment recovers the implied total commitment of the claimed
// activity from the largest climate value and the reported climate share.
// Missing when the share is unreported or zero.
func (g *markerGroup) originalCommitment() float64 {
	if IsNA(g.climateShare) || g.climateShare == 0 {
		return NA()
	}
	maxv := NA()
	for _, v := range []float64{g.adaptation, g.mitigation, g.crossCutting} {
		if IsNA(v) {
			continue
		}
		if IsNA(maxv) || v > maxv {
			maxv = v
		}
	}
	if IsNA(maxv) {
		return NA()
	}
	return maxv / g.climateShare
}

// Match reconciles markers against transactions through the configured key
// cascade, most specific first. A transaction matches at most once; an
// unmatched marker carries forward to the next, less specific, pass.
func (m *Matcher) Match(markers []Marker, transactions []Transaction) Result {
	markerAlive := make([]bool, len(markers))
	for i := range markerAlive {
		markerAlive[i] = true
	}
	txAlive := make([]bool, len(transactions))
	for i := range txAlive {
		txAlive[i] = true
	}

	// CRS identifiers of the raw transaction set, for duplicate tie-breaks.
	crsIDs := make(map[string]struct{}, len(transactions))
	for i := range transactions {
		if id := transactions[i].CRSID; id != "" {
			crsIDs[id] = struct{}{}
		}
	}

	var (
		matched         []Match
		rejectedMarkers []Marker
		rejectedTxs     []Transaction
		diag            Diagnostics
	)

	for _, kc := range m.keyConfigs {
		stats := PassStats{Name: kc.Name}
		diag.Warnings = append(diag.Warnings, m.auditPass(kc, markers, markerAlive, transactions, txAlive)...)

		groups, order := groupMarkers(kc, markers, markerAlive)
		txByKey := indexTransactions(kc, transactions, txAlive)

		for _, key := range order {
			g := groups[key]
			cands := aliveOnly(txByKey[key], txAlive)
			if len(cands) == 0 {
				continue // marker-only this pass, carries forward
			}

			chosen := cands
			if len(cands) > 1 {
				chosen = m.resolveDuplicates(g, cands, transactions, crsIDs, &stats)
			}

			anyMatched := false
			for _, ti := range chosen {
				tx := transactions[ti]
				shares := sharesOf(g.adaptation, g.mitigation, g.crossCutting, tx.USDCommitment)
				if shares.Max() > m.implausibleCutoff || shares.Total() > m.implausibleCutoff {
					// Claim exceeds the commitment beyond tolerance: the
					// pairing is rejected, both sides go to the residue.
					txAlive[ti] = false
					rejectedTxs = append(rejectedTxs, tx)
					stats.ImplausibleRejected++
					continue
				}
				matched = append(matched, Match{Transaction: tx, Shares: shares, Pass: kc.Name})
				txAlive[ti] = false
				anyMatched = true
				stats.Matched++
			}

			for _, mi := range g.rows {
				markerAlive[mi] = false
				if !anyMatched {
					rejectedMarkers = append(rejectedMarkers, markers[mi])
				}
			}
		}

		stats.MarkersRemaining = countAlive(markerAlive)
		stats.TransactionsRemaining = countAlive(txAlive)
		diag.Passes = append(diag.Passes, stats)
		log.Printf("[match] pass %s: matched=%d dup_resolved=%d dup_dropped=%d implausible=%d markers_left=%d txs_left=%d",
			stats.Name, stats.Matched, stats.DuplicatesResolved, stats.DuplicatesDropped,
			stats.ImplausibleRejected, stats.MarkersRemaining, stats.TransactionsRemaining)
	}

	if m.relaxYear {
		relaxed := m.relaxYearPass(matched, transactions, txAlive, &diag)
		matched = append(matched, relaxed...)
	}

	res := Result{Matched: matched, Diagnostics: diag}
	for i, alive := range markerAlive {
		if alive {
			res.UnmatchedMarkers = append(res.UnmatchedMarkers, markers[i])
		}
	}
	res.UnmatchedMarkers = append(res.UnmatchedMarkers, rejectedMarkers...)
	for i, alive := range txAlive {
		if alive {
			res.UnmatchedTransactions = append(res.UnmatchedTransactions, transactions[i])
		}
	}
	res.UnmatchedTransactions = append(res.UnmatchedTransactions, rejectedTxs...)
	return res
}

func (m *Matcher) auditPass(kc KeyConfig, markers []Marker, markerAlive []bool, txs []Transaction, txAlive []bool) []string {
	var fields []KeyField
	for i := range markers {
		if markerAlive[i] {
			fields = append(fields, markers[i].KeyField)
		}
	}
	warnings := auditKeyColumns(kc.Name+"/markers", kc.Columns, fields)
	fields = fields[:0]
	for i := range txs {
		if txAlive[i] {
			fields = append(fields, txs[i].KeyField)
		}
	}
	return append(warnings, auditKeyColumns(kc.Name+"/transactions", kc.Columns, fields)...)
}

// resolveDuplicates applies the commitment-tolerance test against the
// implied original commitment, then falls back to preferring transactions
// whose CRS identifier is known from the raw set.
func (m *Matcher) resolveDuplicates(g *markerGroup, cands []int, txs []Transaction, crsIDs map[string]struct{}, stats *PassStats) []int {
	orig := g.originalCommitment()
	var passing []int
	if !IsNA(orig) {
		for _, ti := range cands {
			c := txs[ti].USDCommitment
			if IsNA(c) || c == 0 {
				continue
			}
			if math.Abs(c-orig)/c <= m.duplicateTolerance {
				passing = append(passing, ti)
			}
		}
	}
	if len(passing) > 0 {
		stats.DuplicatesResolved += len(cands) - len(passing)
		return passing
	}

	// Tolerance test unavailable or eliminated everything: keep a single
	// row, preferring one with a CRS identifier present in the raw set.
	best := cands[0]
	for _, ti := range cands {
		if _, ok := crsIDs[txs[ti].CRSID]; ok && txs[ti].CRSID != "" {
			best = ti
			break
		}
	}
	stats.DuplicatesDropped += len(cands) - 1
	return []int{best}
}

// relaxYearPass re-attempts the leftover transaction pool against the
// already-matched set with the year discriminator loosened: replaced by the
// commitment year when commitment dates are near-fully populated, dropped
// otherwise. Shares are reused from the matched set by key lookup, not
// recomputed against the relaxed grouping.
func (m *Matcher) relaxYearPass(matched []Match, txs []Transaction, txAlive []bool, diag *Diagnostics) []Match {
	remaining := countAlive(txAlive)
	if remaining == 0 || len(matched) == 0 {
		return nil
	}

	withDate := 0
	for i, alive := range txAlive {
		if alive && !txs[i].CommitmentDate.IsZero() {
			withDate++
		}
	}
	substitute := float64(withDate)/float64(remaining) >= config.CommitmentYearMinCoverage

	cols := make([]schema.Column, 0, len(m.keyConfigs[0].Columns))
	for _, c := range m.keyConfigs[0].Columns {
		switch {
		case c == schema.ColYear && substitute:
			cols = append(cols, schema.ColCommitmentYear)
		case c == schema.ColYear:
			// dropped
		default:
			cols = append(cols, c)
		}
	}

	sharesByKey := make(map[string]ClimateShares, len(matched))
	for _, mt := range matched {
		key := BuildKey(cols, mt.Transaction.KeyField)
		if key == "" {
			continue
		}
		if _, ok := sharesByKey[key]; !ok {
			sharesByKey[key] = mt.Shares
		}
	}

	stats := PassStats{Name: "year_relaxed"}
	var out []Match
	for i := range txs {
		if !txAlive[i] {
			continue
		}
		key := BuildKey(cols, txs[i].KeyField)
		if key == "" {
			continue
		}
		shares, ok := sharesByKey[key]
		if !ok {
			continue
		}
		out = append(out, Match{Transaction: txs[i], Shares: shares, Pass: stats.Name})
		txAlive[i] = false
		stats.Matched++
	}
	stats.TransactionsRemaining = countAlive(txAlive)
	diag.Passes = append(diag.Passes, stats)
	log.Printf("[match] pass year_relaxed (substitute=%v): matched=%d txs_left=%d",
		substitute, stats.Matched, stats.TransactionsRemaining)
	return out
}

func groupMarkers(kc KeyConfig, markers []Marker, alive []bool) (map[string]*markerGroup, []string) {
	groups := make(map[string]*markerGroup)
	var order []string
	for i := range markers {
		if !alive[i] {
			continue
		}
		key := BuildKey(kc.Columns, markers[i].KeyField)
		if key == "" {
			continue // degenerate key, cannot identify an activity
		}
		g, ok := groups[key]
		if !ok {
			g = &markerGroup{key: key, adaptation: NA(), mitigation: NA(), crossCutting: NA(), climateShare: NA()}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, i)
		g.add(&markers[i])
	}
	return groups, order
}

func indexTransactions(kc KeyConfig, txs []Transaction, alive []bool) map[string][]int {
	byKey := make(map[string][]int)
	for i := range txs {
		if !alive[i] {
			continue
		}
		key := BuildKey(kc.Columns, txs[i].KeyField)
		if key == "" {
			continue
		}
		byKey[key] = append(byKey[key], i)
	}
	return byKey
}

func aliveOnly(idxs []int, alive []bool) []int {
	out := idxs[:0:0]
	for _, i := range idxs {
		if alive[i] {
			out = append(out, i)
		}
	}
	return out
}

func countAlive(alive []bool) int {
	n := 0
	for _, a := range alive {
		if a {
			n++
		}
	}
	return n
}
