package engine

import (
	"ClimFinLedger/internal/config"
	"ClimFinLedger/internal/schema"
)

// Preset bundles the policy parameters of one published methodology.
// Methodologies are configuration, not code forks: the same matcher and
// transform run under every preset.
type Preset struct {
	Name                   string
	Methodology            schema.Methodology
	SignificantCoefficient float64
	PrincipalCoefficient   float64
	KeyConfigs             []KeyConfig
	RelaxYear              bool
	RollingWindowYears     int
}

// bilateralKeyCascade is the decreasing-specificity join cascade for
// provider-reported flows. The least reliable discriminator drops first, so
// earlier, higher-confidence matches always win.
func bilateralKeyCascade() []KeyConfig {
	full := []schema.Column{
		schema.ColYear,
		schema.ColProviderCode,
		schema.ColAgencyCode,
		schema.ColRecipientCode,
		schema.ColPurposeCode,
		schema.ColProjectID,
		schema.ColProjectTitle,
		schema.ColFinanceType,
		schema.ColFlowModality,
	}
	return []KeyConfig{
		{Name: "full", Columns: full},
		{Name: "no_title", Columns: without(full, schema.ColProjectTitle)},
		{Name: "no_project_id", Columns: without(full, schema.ColProjectID)},
		{Name: "no_agency_title", Columns: without(full, schema.ColAgencyCode, schema.ColProjectTitle)},
		{Name: "no_agency_id", Columns: without(full, schema.ColAgencyCode, schema.ColProjectID)},
		{Name: "no_title_id", Columns: without(full, schema.ColProjectTitle, schema.ColProjectID)},
		{Name: "no_agency_title_id", Columns: without(full, schema.ColAgencyCode, schema.ColProjectTitle, schema.ColProjectID)},
		{Name: "no_modality", Columns: without(full, schema.ColAgencyCode, schema.ColProjectTitle, schema.ColProjectID, schema.ColFlowModality)},
		{Name: "core", Columns: []schema.Column{
			schema.ColYear, schema.ColProviderCode, schema.ColRecipientCode, schema.ColPurposeCode,
		}},
	}
}

// multilateralKeyCascade joins channel-reported flows, where the channel
// code replaces the provider/agency pair.
func multilateralKeyCascade() []KeyConfig {
	full := []schema.Column{
		schema.ColYear,
		schema.ColChannelCode,
		schema.ColRecipientCode,
		schema.ColPurposeCode,
		schema.ColProjectID,
		schema.ColProjectTitle,
		schema.ColFinanceType,
		schema.ColFlowModality,
	}
	return []KeyConfig{
		{Name: "full", Columns: full},
		{Name: "no_title", Columns: without(full, schema.ColProjectTitle)},
		{Name: "no_project_id", Columns: without(full, schema.ColProjectID)},
		{Name: "no_title_id", Columns: without(full, schema.ColProjectTitle, schema.ColProjectID)},
		{Name: "core", Columns: []schema.Column{
			schema.ColYear, schema.ColChannelCode, schema.ColRecipientCode, schema.ColPurposeCode,
		}},
	}
}

func without(cols []schema.Column, drop ...schema.Column) []schema.Column {
	dropped := make(map[schema.Column]struct{}, len(drop))
	for _, c := range drop {
		dropped[c] = struct{}{}
	}
	out := make([]schema.Column, 0, len(cols))
	for _, c := range cols {
		if _, ok := dropped[c]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

func coefficients(m schema.Methodology) (significant, principal float64) {
	if m == schema.MethodologyOECDAdditive {
		return config.OECDSignificantCoefficient, config.OECDPrincipalCoefficient
	}
	return config.DefaultSignificantCoefficient, config.DefaultPrincipalCoefficient
}

// BilateralPreset configures the engine for provider-reported CRS flows.
func BilateralPreset(m schema.Methodology) Preset {
	sig, prin := coefficients(m)
	return Preset{
		Name:                   "bilateral_" + m.String(),
		Methodology:            m,
		SignificantCoefficient: sig,
		PrincipalCoefficient:   prin,
		KeyConfigs:             bilateralKeyCascade(),
		RelaxYear:              true,
		RollingWindowYears:     config.DefaultRollingWindowYears,
	}
}

// MultilateralPreset configures the engine for channel-reported flows used
// by the imputation workflow.
func MultilateralPreset(m schema.Methodology) Preset {
	sig, prin := coefficients(m)
	return Preset{
		Name:                   "multilateral_" + m.String(),
		Methodology:            m,
		SignificantCoefficient: sig,
		PrincipalCoefficient:   prin,
		KeyConfigs:             multilateralKeyCascade(),
		RelaxYear:              true,
		RollingWindowYears:     config.DefaultRollingWindowYears,
	}
}

// Matcher builds the matching engine for this preset.
func (p Preset) Matcher() (*Matcher, error) {
	return NewMatcher(MatcherConfig{
		KeyConfigs: p.KeyConfigs,
		RelaxYear:  p.RelaxYear,
	})
}

// RioTransform builds the marker-to-indicator transform for this preset.
func (p Preset) RioTransform() (*RioTransform, error) {
	return NewRioTransform(p.SignificantCoefficient, p.PrincipalCoefficient,
		p.Methodology == schema.MethodologyHighestMarker)
}
