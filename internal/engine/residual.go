package engine

import (
	"sort"

	"ClimFinLedger/internal/config"
	"ClimFinLedger/internal/schema"
)

// AggregateUnmatched synthesizes marker-shaped aggregate rows for
// transactions no pass could match, so that totals survive even without
// project-level detail. Rows are grouped by (year, provider, agency), the
// descriptive fields are filled with fixed sentinels, and one row is emitted
// per flow kind under the Climate unspecified indicator, always flagged
// unmatched.
func AggregateUnmatched(transactions []Transaction) []IndicatorRow {
	type groupKey struct {
		year     int16
		provider string
		agency   string
	}
	type groupSum struct {
		flows map[schema.FlowKind]float64
	}

	groups := make(map[groupKey]*groupSum)
	var order []groupKey
	for i := range transactions {
		t := &transactions[i]
		k := groupKey{year: t.Year, provider: t.ProviderCode, agency: t.AgencyCode}
		g, ok := groups[k]
		if !ok {
			g = &groupSum{flows: make(map[schema.FlowKind]float64, 4)}
			for _, f := range schema.FlowKinds() {
				g.flows[f] = NA()
			}
			groups[k] = g
			order = append(order, k)
		}
		for _, f := range schema.FlowKinds() {
			g.flows[f] = naSum(g.flows[f], t.Flow(f))
		}
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.year != b.year {
			return a.year < b.year
		}
		if a.provider != b.provider {
			return a.provider < b.provider
		}
		return a.agency < b.agency
	})

	var rows []IndicatorRow
	for _, k := range order {
		g := groups[k]
		agency := k.agency
		if agency == "" {
			agency = config.SentinelAgencyCode
		}
		for _, f := range schema.FlowKinds() {
			v := g.flows[f]
			if IsNA(v) {
				continue
			}
			rows = append(rows, IndicatorRow{
				Year:          k.year,
				ProviderCode:  k.provider,
				AgencyCode:    agency,
				RecipientCode: config.SentinelRecipientCode,
				PurposeCode:   config.SentinelPurposeCode,
				ProjectID:     config.SentinelProjectID,
				ProjectTitle:  config.SentinelProjectTitle,
				Flow:          f,
				Indicator:     schema.IndicatorClimateUnspecified,
				Value:         v,
				Matched:       false,
			})
		}
	}
	return rows
}
