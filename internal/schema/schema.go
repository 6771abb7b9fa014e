package schema

import (
	"fmt"
	"sort"
)

// Column identifies one canonical column of the CRS/CRDF datasets. Every
// component addresses columns through these constants; raw strings coming
// from source files are mapped once, at load time.
type Column string

const (
	ColYear                Column = "year"
	ColProviderCode        Column = "oecd_provider_code"
	ColAgencyCode          Column = "oecd_agency_code"
	ColRecipientCode       Column = "oecd_recipient_code"
	ColPurposeCode         Column = "purpose_code"
	ColCRSID               Column = "crs_identification_number"
	ColProjectID           Column = "project_identification_number"
	ColProjectTitle        Column = "project_title"
	ColFinanceType         Column = "finance_type"
	ColFlowModality        Column = "flow_modality"
	ColFinancialInstrument Column = "financial_instrument"
	ColCommitmentDate      Column = "commitment_date"
	ColCommitmentYear      Column = "commitment_year"
	ColChannelCode         Column = "channel_code"
	ColChannelName         Column = "channel_name"

	ColUSDCommitment      Column = "usd_commitment"
	ColUSDDisbursement    Column = "usd_disbursement"
	ColUSDReceived        Column = "usd_received"
	ColUSDGrantEquivalent Column = "usd_grant_equivalent"
	ColUSDNetDisbursement Column = "usd_net_disbursement"

	ColAdaptationMarker Column = "climate_adaptation_marker"
	ColMitigationMarker Column = "climate_mitigation_marker"

	ColAdaptationValue        Column = "climate_adaptation_value"
	ColMitigationValue        Column = "climate_mitigation_value"
	ColCrossCuttingValue      Column = "overlap_commitment_current"
	ColCommitmentClimateShare Column = "commitment_climate_share"
)

// Kind is the declared semantic type of a column.
type Kind int

const (
	KindInteger Kind = iota // small integer (year)
	KindCode                // institutional / sector code, kept as string
	KindText                // free text (titles, channel names)
	KindDate                // calendar date
	KindMoney               // nullable non-negative USD amount
	KindMarker              // Rio marker level 0/1/2, or 100 for components
	KindShare               // fractional value, expected in [0, ~1.1]
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindCode:
		return "code"
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindMoney:
		return "money"
	case KindMarker:
		return "marker"
	case KindShare:
		return "share"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var registry = map[Column]Kind{
	ColYear:                KindInteger,
	ColProviderCode:        KindCode,
	ColAgencyCode:          KindCode,
	ColRecipientCode:       KindCode,
	ColPurposeCode:         KindCode,
	ColCRSID:               KindCode,
	ColProjectID:           KindCode,
	ColProjectTitle:        KindText,
	ColFinanceType:         KindCode,
	ColFlowModality:        KindCode,
	ColFinancialInstrument: KindCode,
	ColCommitmentDate:      KindDate,
	ColCommitmentYear:      KindInteger,
	ColChannelCode:         KindCode,
	ColChannelName:         KindText,

	ColUSDCommitment:      KindMoney,
	ColUSDDisbursement:    KindMoney,
	ColUSDReceived:        KindMoney,
	ColUSDGrantEquivalent: KindMoney,
	ColUSDNetDisbursement: KindMoney,

	ColAdaptationMarker: KindMarker,
	ColMitigationMarker: KindMarker,

	ColAdaptationValue:        KindMoney,
	ColMitigationValue:        KindMoney,
	ColCrossCuttingValue:      KindMoney,
	ColCommitmentClimateShare: KindShare,
}

// KindOf returns the declared kind of a column.
func KindOf(c Column) (Kind, error) {
	k, ok := registry[c]
	if !ok {
		return 0, fmt.Errorf("schema: unknown column %q", string(c))
	}
	return k, nil
}

// Validate reports whether every column is part of the registry.
func Validate(cols ...Column) error {
	for _, c := range cols {
		if _, ok := registry[c]; !ok {
			return fmt.Errorf("schema: unknown column %q", string(c))
		}
	}
	return nil
}

// Columns returns all registered columns in a stable order.
func Columns() []Column {
	out := make([]Column, 0, len(registry))
	for c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FlowColumns lists the monetary flow columns a matched activity is expanded
// against, in reporting order.
func FlowColumns() []Column {
	return []Column{
		ColUSDCommitment,
		ColUSDDisbursement,
		ColUSDNetDisbursement,
		ColUSDGrantEquivalent,
	}
}

// ClimateValueColumns lists the CRDF monetary climate claim columns.
func ClimateValueColumns() []Column {
	return []Column{ColAdaptationValue, ColMitigationValue, ColCrossCuttingValue}
}

// IdentityColumns lists the descriptive columns shared by transactions and
// markers, most reliable first. Key configurations are built from subsets of
// this list.
func IdentityColumns() []Column {
	return []Column{
		ColYear,
		ColProviderCode,
		ColAgencyCode,
		ColRecipientCode,
		ColPurposeCode,
		ColProjectID,
		ColProjectTitle,
		ColFinanceType,
		ColFlowModality,
	}
}
