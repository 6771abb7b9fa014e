package climate

import (
	"testing"

	"ClimFinLedger/internal/engine"
	"ClimFinLedger/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func channelRow(year int16, channel string, ind schema.Indicator, flow schema.FlowKind, value float64) engine.IndicatorRow {
	return engine.IndicatorRow{
		Year:         year,
		ProviderCode: channel,
		Flow:         flow,
		Indicator:    ind,
		Value:        value,
		Matched:      true,
	}
}

func TestImputeMultilateralAppliesRollingShare(t *testing.T) {
	ledger := []engine.IndicatorRow{
		channelRow(2019, "47130", schema.IndicatorAdaptation, schema.FlowCommitment, 100),
		channelRow(2019, "47130", schema.IndicatorNotClimate, schema.FlowCommitment, 100),
		channelRow(2020, "47130", schema.IndicatorAdaptation, schema.FlowCommitment, 100),
		channelRow(2020, "47130", schema.IndicatorNotClimate, schema.FlowCommitment, 300),
		// Disbursement rows never feed the share series.
		channelRow(2020, "47130", schema.IndicatorAdaptation, schema.FlowDisbursement, 9999),
	}
	contributions := []Contribution{
		{Year: 2020, ProviderCode: "1", ChannelCode: "47130", Value: 300},
		{Year: 2019, ProviderCode: "1", ChannelCode: "47130", Value: 500}, // warm-up year
		{Year: 2020, ProviderCode: "2", ChannelCode: "99999", Value: 100}, // unknown channel
	}

	out, err := ImputeMultilateral(contributions, ledger, 2)
	require.NoError(t, err)
	require.Len(t, out, 1)

	r := out[0]
	assert.Equal(t, int16(2020), r.Year)
	assert.Equal(t, "1", r.ProviderCode)
	assert.Equal(t, "47130", r.ChannelCode)
	assert.Equal(t, schema.IndicatorAdaptation, r.Indicator)
	// Two-year window: adaptation 200 of a 600 total.
	assert.InDelta(t, 1.0/3, r.Share, 1e-12)
	assert.InDelta(t, 100, r.Value, 1e-9)
}

func TestImputeMultilateralWindowValidation(t *testing.T) {
	_, err := ImputeMultilateral(nil, nil, 0)
	require.Error(t, err)
}

func TestImputeMultilateralNoLedger(t *testing.T) {
	out, err := ImputeMultilateral([]Contribution{{Year: 2020, ChannelCode: "c", Value: 1}}, nil, 2)
	require.NoError(t, err)
	assert.Empty(t, out)
}
