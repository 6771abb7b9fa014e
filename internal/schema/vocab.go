package schema

import (
	"fmt"
	"strings"
)

// Indicator is the climate objective a ledger row is attributed to.
type Indicator int

const (
	IndicatorAdaptation Indicator = iota
	IndicatorMitigation
	IndicatorCrossCutting
	IndicatorNotClimate
	IndicatorClimateUnspecified
)

func (i Indicator) String() string {
	switch i {
	case IndicatorAdaptation:
		return "Adaptation"
	case IndicatorMitigation:
		return "Mitigation"
	case IndicatorCrossCutting:
		return "Cross-cutting"
	case IndicatorNotClimate:
		return "Not climate relevant"
	case IndicatorClimateUnspecified:
		return "Climate unspecified"
	}
	return fmt.Sprintf("indicator(%d)", int(i))
}

// ParseIndicator converts an external label into an Indicator.
func ParseIndicator(s string) (Indicator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "adaptation":
		return IndicatorAdaptation, nil
	case "mitigation":
		return IndicatorMitigation, nil
	case "cross-cutting", "cross cutting":
		return IndicatorCrossCutting, nil
	case "not climate relevant", "not-climate-relevant":
		return IndicatorNotClimate, nil
	case "climate unspecified", "climate-unspecified":
		return IndicatorClimateUnspecified, nil
	}
	return 0, fmt.Errorf("schema: unknown indicator %q", s)
}

// FlowKind identifies which monetary flow of a transaction a ledger value
// refers to.
type FlowKind int

const (
	FlowCommitment FlowKind = iota
	FlowDisbursement
	FlowNetDisbursement
	FlowGrantEquivalent
)

func (f FlowKind) String() string {
	switch f {
	case FlowCommitment:
		return "usd_commitment"
	case FlowDisbursement:
		return "usd_disbursement"
	case FlowNetDisbursement:
		return "usd_net_disbursement"
	case FlowGrantEquivalent:
		return "usd_grant_equivalent"
	}
	return fmt.Sprintf("flow(%d)", int(f))
}

// Column returns the registry column holding this flow on a transaction.
func (f FlowKind) Column() Column {
	switch f {
	case FlowCommitment:
		return ColUSDCommitment
	case FlowDisbursement:
		return ColUSDDisbursement
	case FlowNetDisbursement:
		return ColUSDNetDisbursement
	case FlowGrantEquivalent:
		return ColUSDGrantEquivalent
	}
	return ""
}

// FlowKinds returns all flow kinds in reporting order.
func FlowKinds() []FlowKind {
	return []FlowKind{FlowCommitment, FlowDisbursement, FlowNetDisbursement, FlowGrantEquivalent}
}

// ParseFlowKind converts an external label into a FlowKind.
func ParseFlowKind(s string) (FlowKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "usd_commitment", "commitment":
		return FlowCommitment, nil
	case "usd_disbursement", "disbursement":
		return FlowDisbursement, nil
	case "usd_net_disbursement", "net_disbursement":
		return FlowNetDisbursement, nil
	case "usd_grant_equivalent", "grant_equivalent":
		return FlowGrantEquivalent, nil
	}
	return 0, fmt.Errorf("schema: unknown flow kind %q", s)
}

// Methodology selects an attribution policy preset.
type Methodology int

const (
	// MethodologyHighestMarker attributes the full value of an activity to
	// whichever of adaptation/mitigation carries the higher Rio marker.
	MethodologyHighestMarker Methodology = iota
	// MethodologyOECDAdditive lets an activity contribute to both objectives
	// independently; naive totals can double count.
	MethodologyOECDAdditive
)

func (m Methodology) String() string {
	switch m {
	case MethodologyHighestMarker:
		return "highest_marker"
	case MethodologyOECDAdditive:
		return "oecd_additive"
	}
	return fmt.Sprintf("methodology(%d)", int(m))
}

// ParseMethodology converts an external label into a Methodology.
func ParseMethodology(s string) (Methodology, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "highest_marker", "one":
		return MethodologyHighestMarker, nil
	case "oecd_additive", "oecd":
		return MethodologyOECDAdditive, nil
	}
	return 0, fmt.Errorf("schema: unknown methodology %q", s)
}

// Currency is the controlled vocabulary of output currencies.
type Currency int

const (
	CurrencyUSD Currency = iota
	CurrencyEUR
	CurrencyGBP
	CurrencyCAD
)

func (c Currency) String() string {
	switch c {
	case CurrencyUSD:
		return "USD"
	case CurrencyEUR:
		return "EUR"
	case CurrencyGBP:
		return "GBP"
	case CurrencyCAD:
		return "CAD"
	}
	return fmt.Sprintf("currency(%d)", int(c))
}

// ParseCurrency converts an ISO code into a Currency.
func ParseCurrency(s string) (Currency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "USD":
		return CurrencyUSD, nil
	case "EUR":
		return CurrencyEUR, nil
	case "GBP":
		return CurrencyGBP, nil
	case "CAD":
		return CurrencyCAD, nil
	}
	return 0, fmt.Errorf("schema: unknown currency %q", s)
}

// PriceBasis distinguishes current from constant prices.
type PriceBasis int

const (
	PriceCurrent PriceBasis = iota
	PriceConstant
)

func (p PriceBasis) String() string {
	switch p {
	case PriceCurrent:
		return "current"
	case PriceConstant:
		return "constant"
	}
	return fmt.Sprintf("prices(%d)", int(p))
}

// ParsePriceBasis converts an external label into a PriceBasis.
func ParsePriceBasis(s string) (PriceBasis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "current":
		return PriceCurrent, nil
	case "constant":
		return PriceConstant, nil
	}
	return 0, fmt.Errorf("schema: unknown price basis %q", s)
}
