package climate

import (
	"context"
	"testing"

	"ClimFinLedger/internal/engine"
	"ClimFinLedger/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipelineTransaction() engine.Transaction {
	return engine.Transaction{
		Year:               2020,
		ProviderCode:       "1",
		AgencyCode:         "2",
		RecipientCode:      "248",
		PurposeCode:        "23110",
		CRSID:              "2020000001",
		ProjectID:          "P1",
		ProjectTitle:       "Solar grid",
		FinanceType:        "110",
		FlowModality:       "C01",
		USDCommitment:      100,
		USDDisbursement:    engine.NA(),
		USDReceived:        engine.NA(),
		USDGrantEquivalent: engine.NA(),
		USDNetDisbursement: engine.NA(),
		AdaptationMarker:   engine.MarkerMissing,
		MitigationMarker:   engine.MarkerMissing,
	}
}

func pipelineMarker() engine.Marker {
	return engine.Marker{
		Year:                   2020,
		ProviderCode:           "1",
		AgencyCode:             "2",
		RecipientCode:          "248",
		PurposeCode:            "23110",
		ProjectID:              "P1",
		ProjectTitle:           "Solar grid",
		FinanceType:            "110",
		FlowModality:           "C01",
		AdaptationValue:        40,
		MitigationValue:        engine.NA(),
		CrossCuttingValue:      engine.NA(),
		CommitmentClimateShare: engine.NA(),
	}
}

func TestRunComposesMatchMarkerAndResidualPaths(t *testing.T) {
	cd := NewClimateData(nil, nil)

	// One matchable transaction, one unmatched but Rio-marked, one silent.
	marked := pipelineTransaction()
	marked.CRSID = "2020000002"
	marked.ProjectID = "P2"
	marked.ProjectTitle = "Flood walls"
	marked.RecipientCode = "285"
	marked.AdaptationMarker = engine.MarkerPrincipal
	marked.MitigationMarker = engine.MarkerNotTargeted

	silent := pipelineTransaction()
	silent.CRSID = "2020000003"
	silent.ProjectID = "P3"
	silent.ProjectTitle = "Roads"
	silent.RecipientCode = "425"
	silent.USDCommitment = 50

	cd.SetTransactions([]engine.Transaction{pipelineTransaction(), marked, silent})
	cd.SetMarkers([]engine.Marker{pipelineMarker()})

	summary, err := cd.Run(context.Background(), engine.BilateralPreset(schema.MethodologyHighestMarker), schema.CurrencyUSD, schema.PriceCurrent)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Transactions)
	assert.Equal(t, 1, summary.Markers)
	assert.Equal(t, 1, summary.MatchedActivities)
	assert.Equal(t, 1, summary.MarkerAttributed)
	assert.Equal(t, 2, summary.ResidualTransactions)
	assert.Equal(t, 0, summary.ResidualMarkers)
	assert.Equal(t, "USD", summary.Currency)
	assert.NotEmpty(t, summary.Passes)

	ledger := cd.Ledger(LedgerFilter{})
	assert.Equal(t, summary.LedgerRows, len(ledger))

	// Per-path spot checks: matched expansion, Rio attribution, aggregate
	// residual.
	adaptation := schema.IndicatorAdaptation
	matchedRows := cd.Ledger(LedgerFilter{Indicator: &adaptation, MatchedOnly: true})
	require.Len(t, matchedRows, 2)

	unspecified := schema.IndicatorClimateUnspecified
	residualRows := cd.Ledger(LedgerFilter{Indicator: &unspecified})
	require.Len(t, residualRows, 1)
	assert.InDelta(t, 50, residualRows[0].Value, 1e-9)
	assert.False(t, residualRows[0].Matched)

	// Conservation across all three paths: ledger commitments sum to the
	// input commitments.
	total := 0.0
	for _, r := range ledger {
		if r.Flow == schema.FlowCommitment {
			total += r.Value
		}
	}
	assert.InDelta(t, 250, total, 1e-9)

	_, residualTxs := cd.Residuals()
	assert.Len(t, residualTxs, 2)
	require.NotNil(t, cd.LastRun())
	assert.Equal(t, summary.RunID, cd.LastRun().RunID)
}

func TestSetMarkersResolvesChannelCodes(t *testing.T) {
	cd := NewClimateData(nil, StaticChannelMapper{"green climate fund": "47130"})

	m := pipelineMarker()
	m.ChannelCode = ""
	m.ChannelName = "Green Climate Fund"
	unknown := pipelineMarker()
	unknown.ChannelCode = ""
	unknown.ChannelName = "Unheard Of Fund"

	cd.SetMarkers([]engine.Marker{m, unknown})

	cd.mu.RLock()
	defer cd.mu.RUnlock()
	assert.Equal(t, "47130", cd.markers[0].ChannelCode)
	assert.Equal(t, "", cd.markers[1].ChannelCode)
}

func TestLedgerFilter(t *testing.T) {
	adaptation := schema.IndicatorAdaptation
	row := engine.IndicatorRow{Year: 2020, ProviderCode: "1", Indicator: adaptation, Matched: true}

	assert.True(t, LedgerFilter{}.match(row))
	assert.True(t, LedgerFilter{Year: 2020, ProviderCode: "1", Indicator: &adaptation, MatchedOnly: true}.match(row))
	assert.False(t, LedgerFilter{Year: 2021}.match(row))
	assert.False(t, LedgerFilter{ProviderCode: "2"}.match(row))
	mitigation := schema.IndicatorMitigation
	assert.False(t, LedgerFilter{Indicator: &mitigation}.match(row))
	row.Matched = false
	assert.False(t, LedgerFilter{MatchedOnly: true}.match(row))
}

func TestRunRejectsBadPreset(t *testing.T) {
	cd := NewClimateData(nil, nil)
	preset := engine.BilateralPreset(schema.MethodologyHighestMarker)
	preset.KeyConfigs = nil
	_, err := cd.Run(context.Background(), preset, schema.CurrencyUSD, schema.PriceCurrent)
	require.Error(t, err)
}
