package engine

import (
	"ClimFinLedger/internal/schema"
)

// ClimateShares expresses a matched climate claim as fractions of the
// transaction commitment. Shares are computed once against the commitment
// and reapplied to every flow kind: the climate proportion of an activity is
// assumed flow-type-invariant. That is a modeling decision of the published
// methodology and is never recomputed per flow.
type ClimateShares struct {
	Adaptation   float64
	Mitigation   float64
	CrossCutting float64
}

// sharesOf divides claimed climate values by a commitment. A zero or
// missing commitment yields missing shares, propagated rather than raised.
func sharesOf(adaptation, mitigation, crossCutting, commitment float64) ClimateShares {
	div := func(v float64) float64 {
		if IsNA(v) || IsNA(commitment) || commitment == 0 {
			return NA()
		}
		return v / commitment
	}
	return ClimateShares{
		Adaptation:   div(adaptation),
		Mitigation:   div(mitigation),
		CrossCutting: div(crossCutting),
	}
}

// Total is the combined climate share with the cross-cutting overlap counted
// once. Missing components contribute 0.
func (s ClimateShares) Total() float64 {
	return orZero(s.Adaptation) + orZero(s.Mitigation) - orZero(s.CrossCutting)
}

// Max is the largest single component share, 0 when all are missing.
func (s ClimateShares) Max() float64 {
	m := 0.0
	for _, v := range []float64{s.Adaptation, s.Mitigation, s.CrossCutting} {
		if !IsNA(v) && v > m {
			m = v
		}
	}
	return m
}

// Match pairs one transaction with the climate shares recovered for it,
// tagged with the pass that produced it.
type Match struct {
	Transaction Transaction
	Shares      ClimateShares
	Pass        string
}

// Expand re-applies the shares of a match to every monetary flow of its
// transaction, one row per (flow kind x indicator). Flows the transaction
// does not report produce no rows. The cross-cutting overlap is netted out
// of each objective and reported on its own, the same convention as
// ComponentsIndicators, and the unclaimed remainder of each flow is emitted
// as Not climate relevant so that totals are conserved.
func (m Match) Expand() []IndicatorRow {
	rows := make([]IndicatorRow, 0, 4*len(schema.FlowKinds()))
	cross := orZero(m.Shares.CrossCutting)
	for _, f := range schema.FlowKinds() {
		amount := m.Transaction.Flow(f)
		if IsNA(amount) {
			continue
		}
		emit := func(ind schema.Indicator, share float64) {
			rows = append(rows, m.row(f, ind, share*amount))
		}
		if v := orZero(m.Shares.Adaptation) - cross; v != 0 {
			emit(schema.IndicatorAdaptation, v)
		}
		if v := orZero(m.Shares.Mitigation) - cross; v != 0 {
			emit(schema.IndicatorMitigation, v)
		}
		if cross != 0 {
			emit(schema.IndicatorCrossCutting, cross)
		}
		if rem := 1 - m.Shares.Total(); rem > 1e-9 {
			emit(schema.IndicatorNotClimate, rem)
		}
	}
	return rows
}

func (m Match) row(f schema.FlowKind, ind schema.Indicator, value float64) IndicatorRow {
	t := m.Transaction
	return IndicatorRow{
		Year:          t.Year,
		ProviderCode:  t.ProviderCode,
		AgencyCode:    t.AgencyCode,
		RecipientCode: t.RecipientCode,
		PurposeCode:   t.PurposeCode,
		ProjectID:     t.ProjectID,
		ProjectTitle:  t.ProjectTitle,
		FinanceType:   t.FinanceType,
		FlowModality:  t.FlowModality,
		Flow:          f,
		Indicator:     ind,
		Value:         value,
		Matched:       true,
	}
}

// ExpandAll flattens a slice of matches into indicator rows.
func ExpandAll(matches []Match) []IndicatorRow {
	var rows []IndicatorRow
	for _, m := range matches {
		rows = append(rows, m.Expand()...)
	}
	return rows
}
