package engine

import (
	"math"
	"strconv"
	"time"

	"ClimFinLedger/internal/schema"
)

// Monetary amounts are float64 with NaN standing for a missing value. The
// loading layer coerces source cells into this representation; the engine
// only propagates it.

// NA returns the missing-amount sentinel.
func NA() float64 { return math.NaN() }

// IsNA reports whether an amount is missing.
func IsNA(v float64) bool { return math.IsNaN(v) }

// naSum sums amounts skipping missing values. A sum over only missing
// values is itself missing.
func naSum(vs ...float64) float64 {
	sum, seen := 0.0, false
	for _, v := range vs {
		if IsNA(v) {
			continue
		}
		sum += v
		seen = true
	}
	if !seen {
		return NA()
	}
	return sum
}

// orZero collapses a missing amount to 0 for total-preserving aggregation.
func orZero(v float64) float64 {
	if IsNA(v) {
		return 0
	}
	return v
}

// MarkerLevel is a raw Rio marker code. 0/1/2 are marker levels, 100 flags
// pre-quantified "climate components" rows, -1 is unreported.
type MarkerLevel int16

const (
	MarkerMissing     MarkerLevel = -1
	MarkerNotTargeted MarkerLevel = 0
	MarkerSignificant MarkerLevel = 1
	MarkerPrincipal   MarkerLevel = 2
	MarkerComponents  MarkerLevel = 100
)

// Transaction is one CRS activity-year entry.
type Transaction struct {
	Year                int16
	ProviderCode        string
	AgencyCode          string
	RecipientCode       string
	PurposeCode         string
	CRSID               string
	ProjectID           string
	ProjectTitle        string
	FinanceType         string
	FlowModality        string
	FinancialInstrument string
	CommitmentDate      time.Time // zero when unreported

	USDCommitment      float64
	USDDisbursement    float64
	USDReceived        float64
	USDGrantEquivalent float64
	USDNetDisbursement float64

	AdaptationMarker MarkerLevel
	MitigationMarker MarkerLevel
}

// Flow returns the amount of the given flow kind.
func (t *Transaction) Flow(f schema.FlowKind) float64 {
	switch f {
	case schema.FlowCommitment:
		return t.USDCommitment
	case schema.FlowDisbursement:
		return t.USDDisbursement
	case schema.FlowNetDisbursement:
		return t.USDNetDisbursement
	case schema.FlowGrantEquivalent:
		return t.USDGrantEquivalent
	}
	return NA()
}

// CommitmentYear returns the calendar year of the commitment date, 0 when
// the date is unreported.
func (t *Transaction) CommitmentYear() int16 {
	if t.CommitmentDate.IsZero() {
		return 0
	}
	return int16(t.CommitmentDate.Year())
}

// KeyField implements key building for transactions. The second return is
// false for columns a CRS row does not carry.
func (t *Transaction) KeyField(c schema.Column) (string, bool) {
	switch c {
	case schema.ColYear:
		return yearString(t.Year), true
	case schema.ColCommitmentYear:
		return yearString(t.CommitmentYear()), true
	case schema.ColProviderCode:
		return t.ProviderCode, true
	case schema.ColAgencyCode:
		return t.AgencyCode, true
	case schema.ColRecipientCode:
		return t.RecipientCode, true
	case schema.ColPurposeCode:
		return t.PurposeCode, true
	case schema.ColCRSID:
		return t.CRSID, true
	case schema.ColProjectID:
		return t.ProjectID, true
	case schema.ColProjectTitle:
		return t.ProjectTitle, true
	case schema.ColFinanceType:
		return t.FinanceType, true
	case schema.ColFlowModality:
		return t.FlowModality, true
	case schema.ColFinancialInstrument:
		return t.FinancialInstrument, true
	}
	return "", false
}

// Marker is one CRDF climate-finance claim tied to a transaction only by
// descriptive attributes.
type Marker struct {
	Year          int16
	ProviderCode  string
	AgencyCode    string
	RecipientCode string
	PurposeCode   string
	ProjectID     string
	ProjectTitle  string
	FinanceType   string
	FlowModality  string
	ChannelCode   string
	ChannelName   string

	AdaptationValue   float64
	MitigationValue   float64
	CrossCuttingValue float64

	// CommitmentClimateShare is the reported ratio of climate claim to total
	// commitment, when the source publishes it. NA otherwise.
	CommitmentClimateShare float64

	AdaptationMarker MarkerLevel
	MitigationMarker MarkerLevel
}

// ClimateTotal is the claimed climate value with the cross-cutting overlap
// counted once.
func (m *Marker) ClimateTotal() float64 {
	total := naSum(m.AdaptationValue, m.MitigationValue)
	if IsNA(total) {
		return total
	}
	return total - orZero(m.CrossCuttingValue)
}

// KeyField implements key building for markers. CRDF rows carry no CRS
// identifier or financial instrument.
func (m *Marker) KeyField(c schema.Column) (string, bool) {
	switch c {
	case schema.ColYear:
		return yearString(m.Year), true
	case schema.ColProviderCode:
		return m.ProviderCode, true
	case schema.ColAgencyCode:
		return m.AgencyCode, true
	case schema.ColRecipientCode:
		return m.RecipientCode, true
	case schema.ColPurposeCode:
		return m.PurposeCode, true
	case schema.ColProjectID:
		return m.ProjectID, true
	case schema.ColProjectTitle:
		return m.ProjectTitle, true
	case schema.ColFinanceType:
		return m.FinanceType, true
	case schema.ColFlowModality:
		return m.FlowModality, true
	case schema.ColChannelCode:
		return m.ChannelCode, true
	case schema.ColChannelName:
		return m.ChannelName, true
	}
	return "", false
}

// IndicatorRow is the terminal output unit: one identifying tuple, one flow
// kind, one climate indicator, one value. Never mutated after creation.
type IndicatorRow struct {
	Year          int16
	ProviderCode  string
	AgencyCode    string
	RecipientCode string
	PurposeCode   string
	ProjectID     string
	ProjectTitle  string
	FinanceType   string
	FlowModality  string

	Flow      schema.FlowKind
	Indicator schema.Indicator
	Value     float64
	Matched   bool
}

func yearString(y int16) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(int(y))
}
