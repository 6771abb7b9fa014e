package engine

import (
	"fmt"

	"ClimFinLedger/internal/schema"
)

// RioTransform converts raw 0/1/2 Rio marker codes into named climate
// indicators. Two policies exist: highest-marker assigns the full value to
// the stronger objective, additive lets both objectives count.
//
// Rows flagged with the components code (100) are pre-quantified and must go
// through ComponentsIndicators instead; the caller splits its input first.
type RioTransform struct {
	significant   float64
	principal     float64
	highestMarker bool
}

// NewRioTransform validates the coefficients at construction. Both must lie
// in [0, 1].
func NewRioTransform(significant, principal float64, highestMarker bool) (*RioTransform, error) {
	if significant < 0 || significant > 1 {
		return nil, fmt.Errorf("rio transform: significant coefficient %v outside [0,1]", significant)
	}
	if principal < 0 || principal > 1 {
		return nil, fmt.Errorf("rio transform: principal coefficient %v outside [0,1]", principal)
	}
	return &RioTransform{significant: significant, principal: principal, highestMarker: highestMarker}, nil
}

func (rt *RioTransform) coefficient(level MarkerLevel) float64 {
	if level >= MarkerPrincipal {
		return rt.principal
	}
	return rt.significant
}

// weights returns the indicator weights for one (adaptation, mitigation)
// marker pair. Unreported markers count as not targeted.
func (rt *RioTransform) weights(adaptation, mitigation MarkerLevel) map[schema.Indicator]float64 {
	if adaptation <= MarkerNotTargeted && mitigation <= MarkerNotTargeted {
		return map[schema.Indicator]float64{schema.IndicatorNotClimate: 1}
	}

	if rt.highestMarker {
		if adaptation == mitigation {
			return map[schema.Indicator]float64{
				schema.IndicatorCrossCutting: rt.coefficient(adaptation),
			}
		}
		if adaptation > mitigation {
			return map[schema.Indicator]float64{
				schema.IndicatorAdaptation: rt.coefficient(adaptation),
			}
		}
		return map[schema.Indicator]float64{
			schema.IndicatorMitigation: rt.coefficient(mitigation),
		}
	}

	out := make(map[schema.Indicator]float64, 3)
	if adaptation > MarkerNotTargeted {
		out[schema.IndicatorAdaptation] = rt.coefficient(adaptation)
	}
	if mitigation > MarkerNotTargeted {
		out[schema.IndicatorMitigation] = rt.coefficient(mitigation)
	}
	if adaptation == mitigation && adaptation > MarkerNotTargeted {
		out[schema.IndicatorCrossCutting] = rt.coefficient(adaptation)
	}
	return out
}

// Apply emits indicator rows for one transaction under the configured
// policy, one row per (flow kind x indicator) for flows the transaction
// reports.
func (rt *RioTransform) Apply(t Transaction) []IndicatorRow {
	weights := rt.weights(t.AdaptationMarker, t.MitigationMarker)
	var rows []IndicatorRow
	for _, f := range schema.FlowKinds() {
		amount := t.Flow(f)
		if IsNA(amount) {
			continue
		}
		for _, ind := range indicatorOrder {
			w, ok := weights[ind]
			if !ok {
				continue
			}
			rows = append(rows, IndicatorRow{
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
				Value:         w * amount,
				Matched:       true,
			})
		}
	}
	return rows
}

// ApplyAll runs the transform over a transaction set.
func (rt *RioTransform) ApplyAll(txs []Transaction) []IndicatorRow {
	var rows []IndicatorRow
	for i := range txs {
		rows = append(rows, rt.Apply(txs[i])...)
	}
	return rows
}

var indicatorOrder = []schema.Indicator{
	schema.IndicatorAdaptation,
	schema.IndicatorMitigation,
	schema.IndicatorCrossCutting,
	schema.IndicatorNotClimate,
}

// ComponentsIndicators converts pre-quantified climate component values into
// per-indicator amounts. The cross-cutting overlap is subtracted once from
// each objective and reported on its own, so the indicator total equals
// adaptation + mitigation - cross-cutting. No coefficient applies.
func ComponentsIndicators(adaptation, mitigation, crossCutting float64) map[schema.Indicator]float64 {
	cross := orZero(crossCutting)
	out := make(map[schema.Indicator]float64, 3)
	if v := orZero(adaptation) - cross; v != 0 {
		out[schema.IndicatorAdaptation] = v
	}
	if v := orZero(mitigation) - cross; v != 0 {
		out[schema.IndicatorMitigation] = v
	}
	if cross != 0 {
		out[schema.IndicatorCrossCutting] = cross
	}
	return out
}

// IsComponentsRow reports whether a marker row carries pre-quantified
// component values rather than Rio codes.
func IsComponentsRow(adaptation, mitigation MarkerLevel) bool {
	return adaptation == MarkerComponents || mitigation == MarkerComponents
}

// SplitByMarkerPolicy partitions marker rows into the Rio path (codes 0-2)
// and the components path (code 100). The two policies are mutually
// exclusive per row.
func SplitByMarkerPolicy(markers []Marker) (rio, components []Marker) {
	for _, m := range markers {
		if IsComponentsRow(m.AdaptationMarker, m.MitigationMarker) {
			components = append(components, m)
		} else {
			rio = append(rio, m)
		}
	}
	return rio, components
}
