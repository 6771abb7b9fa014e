package engine

import (
	"testing"

	"ClimFinLedger/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharesOfZeroCommitment(t *testing.T) {
	s := sharesOf(40, NA(), NA(), 0)
	assert.True(t, IsNA(s.Adaptation))
	assert.True(t, IsNA(s.Mitigation))
	assert.True(t, IsNA(s.CrossCutting))

	s = sharesOf(40, NA(), NA(), NA())
	assert.True(t, IsNA(s.Adaptation))
}

func TestSharesTotalCountsOverlapOnce(t *testing.T) {
	s := ClimateShares{Adaptation: 0.4, Mitigation: 0.3, CrossCutting: 0.2}
	assert.InDelta(t, 0.5, s.Total(), 1e-12)

	s = ClimateShares{Adaptation: 0.4, Mitigation: NA(), CrossCutting: NA()}
	assert.InDelta(t, 0.4, s.Total(), 1e-12)
	assert.InDelta(t, 0.4, s.Max(), 1e-12)

	s = ClimateShares{Adaptation: NA(), Mitigation: NA(), CrossCutting: NA()}
	assert.Equal(t, 0.0, s.Max())
}

func TestExpandAppliesSharesToEveryFlow(t *testing.T) {
	m := Match{
		Transaction: Transaction{
			Year: 2020, ProviderCode: "1",
			USDCommitment:      100,
			USDDisbursement:    80,
			USDNetDisbursement: 80,
			USDGrantEquivalent: NA(),
		},
		Shares: ClimateShares{Adaptation: 0.4, Mitigation: NA(), CrossCutting: NA()},
		Pass:   "full",
	}
	rows := m.Expand()

	// Three reported flows, two indicators each: the claimed share and the
	// unclaimed remainder. The missing grant-equivalent flow produces nothing.
	require.Len(t, rows, 6)

	byFlowInd := map[string]float64{}
	for _, r := range rows {
		assert.True(t, r.Matched)
		byFlowInd[r.Flow.String()+"/"+r.Indicator.String()] = r.Value
	}
	assert.InDelta(t, 40, byFlowInd["usd_commitment/Adaptation"], 1e-9)
	assert.InDelta(t, 60, byFlowInd["usd_commitment/Not climate relevant"], 1e-9)
	assert.InDelta(t, 32, byFlowInd["usd_disbursement/Adaptation"], 1e-9)
	assert.InDelta(t, 48, byFlowInd["usd_disbursement/Not climate relevant"], 1e-9)
	assert.InDelta(t, 32, byFlowInd["usd_net_disbursement/Adaptation"], 1e-9)
}

func TestExpandFullyClaimedEmitsNoRemainder(t *testing.T) {
	m := Match{
		Transaction: Transaction{
			Year: 2020, USDCommitment: 100,
			USDDisbursement: NA(), USDNetDisbursement: NA(), USDGrantEquivalent: NA(),
		},
		Shares: ClimateShares{Adaptation: 1, Mitigation: NA(), CrossCutting: NA()},
	}
	rows := m.Expand()
	require.Len(t, rows, 1)
	assert.Equal(t, schema.IndicatorAdaptation, rows[0].Indicator)
	assert.InDelta(t, 100, rows[0].Value, 1e-9)
}

func TestExpandConservesFlowTotals(t *testing.T) {
	m := Match{
		Transaction: Transaction{
			Year: 2021, USDCommitment: 250,
			USDDisbursement: NA(), USDNetDisbursement: NA(), USDGrantEquivalent: NA(),
		},
		Shares: ClimateShares{Adaptation: 0.3, Mitigation: 0.5, CrossCutting: 0.1},
	}
	rows := m.Expand()
	require.Len(t, rows, 4)

	byInd := map[schema.Indicator]float64{}
	total := 0.0
	for _, r := range rows {
		byInd[r.Indicator] = r.Value
		total += r.Value
	}

	// The overlap is netted out of each objective and carried on its own
	// row, so the four rows partition the commitment.
	assert.InDelta(t, 50, byInd[schema.IndicatorAdaptation], 1e-9)
	assert.InDelta(t, 100, byInd[schema.IndicatorMitigation], 1e-9)
	assert.InDelta(t, 25, byInd[schema.IndicatorCrossCutting], 1e-9)
	assert.InDelta(t, 75, byInd[schema.IndicatorNotClimate], 1e-9)
	assert.InDelta(t, 250, total, 1e-9)
}
