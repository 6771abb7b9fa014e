package engine

import (
	"testing"
	"time"

	"ClimFinLedger/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransaction() Transaction {
	return Transaction{
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
		USDDisbursement:    80,
		USDReceived:        NA(),
		USDGrantEquivalent: NA(),
		USDNetDisbursement: 80,
		AdaptationMarker:   MarkerMissing,
		MitigationMarker:   MarkerMissing,
	}
}

func testMarker() Marker {
	return Marker{
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
		MitigationValue:        NA(),
		CrossCuttingValue:      NA(),
		CommitmentClimateShare: NA(),
		AdaptationMarker:       MarkerSignificant,
		MitigationMarker:       MarkerNotTargeted,
	}
}

func bilateralMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := BilateralPreset(schema.MethodologyHighestMarker).Matcher()
	require.NoError(t, err)
	return m
}

// strictMatcher runs the bilateral cascade without the year-relaxed pass, so
// deliberately unmatched transactions stay unmatched.
func strictMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := NewMatcher(MatcherConfig{KeyConfigs: bilateralKeyCascade()})
	require.NoError(t, err)
	return m
}

func TestNewMatcherValidation(t *testing.T) {
	_, err := NewMatcher(MatcherConfig{})
	require.Error(t, err)

	_, err = NewMatcher(MatcherConfig{KeyConfigs: []KeyConfig{{Name: "bad", Columns: []schema.Column{"nope"}}}})
	require.Error(t, err)

	_, err = NewMatcher(MatcherConfig{
		KeyConfigs:         []KeyConfig{{Name: "ok", Columns: []schema.Column{schema.ColYear}}},
		DuplicateTolerance: -1,
	})
	require.Error(t, err)
}

func TestMatchFullKey(t *testing.T) {
	m := bilateralMatcher(t)
	res := m.Match([]Marker{testMarker()}, []Transaction{testTransaction()})

	require.Len(t, res.Matched, 1)
	assert.Equal(t, "full", res.Matched[0].Pass)
	assert.InDelta(t, 0.4, res.Matched[0].Shares.Adaptation, 1e-12)
	assert.True(t, IsNA(res.Matched[0].Shares.Mitigation))
	assert.Empty(t, res.UnmatchedMarkers)
	assert.Empty(t, res.UnmatchedTransactions)
}

func TestMatchFallsThroughCascade(t *testing.T) {
	marker := testMarker()
	marker.ProjectTitle = "" // reported without a title, full key cannot hit

	m := bilateralMatcher(t)
	res := m.Match([]Marker{marker}, []Transaction{testTransaction()})

	require.Len(t, res.Matched, 1)
	assert.Equal(t, "no_title", res.Matched[0].Pass)
}

func TestMatchImplausibleClaimRejected(t *testing.T) {
	marker := testMarker()
	marker.AdaptationValue = 150 // claim exceeds the 100 commitment past the cutoff

	m := bilateralMatcher(t)
	res := m.Match([]Marker{marker}, []Transaction{testTransaction()})

	assert.Empty(t, res.Matched)
	require.Len(t, res.UnmatchedTransactions, 1)
	require.Len(t, res.UnmatchedMarkers, 1)
	assert.Equal(t, 1, res.Diagnostics.Passes[0].ImplausibleRejected)
}

func TestMatchNothingMatchesPreservesBothSides(t *testing.T) {
	marker := testMarker()
	marker.RecipientCode = "998"

	m := bilateralMatcher(t)
	res := m.Match([]Marker{marker}, []Transaction{testTransaction()})

	assert.Empty(t, res.Matched)
	assert.Len(t, res.UnmatchedMarkers, 1)
	assert.Len(t, res.UnmatchedTransactions, 1)
}

func TestMatchDegenerateKeyNeverMatches(t *testing.T) {
	m := bilateralMatcher(t)
	res := m.Match([]Marker{{}}, []Transaction{{USDCommitment: 100}})

	assert.Empty(t, res.Matched)
	assert.Len(t, res.UnmatchedMarkers, 1)
	assert.Len(t, res.UnmatchedTransactions, 1)
}

func TestDuplicateResolutionByCommitmentTolerance(t *testing.T) {
	marker := testMarker()
	marker.CommitmentClimateShare = 0.4 // implied original commitment 40/0.4 = 100

	tx1 := testTransaction()
	tx2 := testTransaction()
	tx2.CRSID = "2020000002"
	tx2.USDCommitment = 250

	m := strictMatcher(t)
	res := m.Match([]Marker{marker}, []Transaction{tx2, tx1})

	require.Len(t, res.Matched, 1)
	assert.Equal(t, "2020000001", res.Matched[0].Transaction.CRSID)
	assert.Equal(t, 1, res.Diagnostics.Passes[0].DuplicatesResolved)
	// The losing duplicate stays in the pool and ends up residual.
	require.Len(t, res.UnmatchedTransactions, 1)
	assert.Equal(t, "2020000002", res.UnmatchedTransactions[0].CRSID)
}

func TestDuplicateFallbackPrefersKnownCRSID(t *testing.T) {
	marker := testMarker() // no climate share reported, tolerance test unavailable

	tx1 := testTransaction()
	tx1.CRSID = ""
	tx2 := testTransaction()

	m := strictMatcher(t)
	res := m.Match([]Marker{marker}, []Transaction{tx1, tx2})

	require.Len(t, res.Matched, 1)
	assert.Equal(t, "2020000001", res.Matched[0].Transaction.CRSID)
	assert.Equal(t, 1, res.Diagnostics.Passes[0].DuplicatesDropped)
}

func TestYearRelaxedReusesShares(t *testing.T) {
	tx1 := testTransaction()
	tx1.CommitmentDate = time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)

	// Reported in a later year, committed in the matched one.
	tx2 := testTransaction()
	tx2.Year = 2021
	tx2.CRSID = "2020000002"
	tx2.USDCommitment = 200
	tx2.USDDisbursement = NA()
	tx2.USDNetDisbursement = NA()
	tx2.CommitmentDate = time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)

	m := bilateralMatcher(t)
	res := m.Match([]Marker{testMarker()}, []Transaction{tx1, tx2})

	require.Len(t, res.Matched, 2)
	assert.Equal(t, "full", res.Matched[0].Pass)
	assert.Equal(t, "year_relaxed", res.Matched[1].Pass)
	// The relaxed match reuses the matched share, not a recomputed one.
	assert.InDelta(t, 0.4, res.Matched[1].Shares.Adaptation, 1e-12)
	assert.Empty(t, res.UnmatchedTransactions)
}

func TestMatchConservesValue(t *testing.T) {
	marker := testMarker()
	tx := testTransaction()

	m := bilateralMatcher(t)
	res := m.Match([]Marker{marker}, []Transaction{tx})
	require.Len(t, res.Matched, 1)

	rows := ExpandAll(res.Matched)
	totals := map[schema.FlowKind]float64{}
	for _, r := range rows {
		totals[r.Flow] += r.Value
	}
	assert.InDelta(t, tx.USDCommitment, totals[schema.FlowCommitment], 1e-9)
	assert.InDelta(t, tx.USDDisbursement, totals[schema.FlowDisbursement], 1e-9)
	assert.InDelta(t, tx.USDNetDisbursement, totals[schema.FlowNetDisbursement], 1e-9)
}

func TestMatchConservesValueWithCrossCutting(t *testing.T) {
	marker := testMarker()
	marker.AdaptationValue = 40
	marker.MitigationValue = 50
	marker.CrossCuttingValue = 20
	tx := testTransaction()

	m := bilateralMatcher(t)
	res := m.Match([]Marker{marker}, []Transaction{tx})
	require.Len(t, res.Matched, 1)

	rows := ExpandAll(res.Matched)
	totals := map[schema.FlowKind]float64{}
	byInd := map[schema.Indicator]float64{}
	for _, r := range rows {
		totals[r.Flow] += r.Value
		if r.Flow == schema.FlowCommitment {
			byInd[r.Indicator] = r.Value
		}
	}
	assert.InDelta(t, tx.USDCommitment, totals[schema.FlowCommitment], 1e-9)
	assert.InDelta(t, tx.USDDisbursement, totals[schema.FlowDisbursement], 1e-9)
	assert.InDelta(t, 20, byInd[schema.IndicatorAdaptation], 1e-9)
	assert.InDelta(t, 30, byInd[schema.IndicatorMitigation], 1e-9)
	assert.InDelta(t, 20, byInd[schema.IndicatorCrossCutting], 1e-9)
	assert.InDelta(t, 30, byInd[schema.IndicatorNotClimate], 1e-9)
}

func TestMarkerGroupSumsDuplicateRows(t *testing.T) {
	m1 := testMarker()
	m1.AdaptationValue = 25
	m2 := testMarker()
	m2.AdaptationValue = 15

	m := bilateralMatcher(t)
	res := m.Match([]Marker{m1, m2}, []Transaction{testTransaction()})

	require.Len(t, res.Matched, 1)
	assert.InDelta(t, 0.4, res.Matched[0].Shares.Adaptation, 1e-12)
}
