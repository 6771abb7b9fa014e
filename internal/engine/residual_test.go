package engine

import (
	"testing"

	"ClimFinLedger/internal/config"
	"ClimFinLedger/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateUnmatchedGroupsAndSums(t *testing.T) {
	txs := []Transaction{
		{Year: 2020, ProviderCode: "1", USDCommitment: 10, USDDisbursement: NA(), USDGrantEquivalent: NA(), USDNetDisbursement: NA()},
		{Year: 2020, ProviderCode: "1", USDCommitment: 20, USDDisbursement: NA(), USDGrantEquivalent: NA(), USDNetDisbursement: NA()},
		{Year: 2021, ProviderCode: "2", AgencyCode: "7", USDCommitment: 5, USDDisbursement: 3, USDGrantEquivalent: NA(), USDNetDisbursement: NA()},
	}
	rows := AggregateUnmatched(txs)

	// First group reports only commitments, second commitments and
	// disbursements. Missing flows produce no rows.
	require.Len(t, rows, 3)

	assert.Equal(t, int16(2020), rows[0].Year)
	assert.Equal(t, "1", rows[0].ProviderCode)
	assert.InDelta(t, 30, rows[0].Value, 1e-9)
	assert.Equal(t, schema.FlowCommitment, rows[0].Flow)

	assert.Equal(t, int16(2021), rows[1].Year)
	assert.InDelta(t, 5, rows[1].Value, 1e-9)
	assert.Equal(t, schema.FlowDisbursement, rows[2].Flow)
	assert.InDelta(t, 3, rows[2].Value, 1e-9)
}

func TestAggregateUnmatchedSentinelFields(t *testing.T) {
	rows := AggregateUnmatched([]Transaction{
		{Year: 2020, ProviderCode: "1", USDCommitment: 10, USDDisbursement: NA(), USDGrantEquivalent: NA(), USDNetDisbursement: NA()},
	})
	require.Len(t, rows, 1)
	r := rows[0]
	assert.Equal(t, config.SentinelAgencyCode, r.AgencyCode)
	assert.Equal(t, config.SentinelRecipientCode, r.RecipientCode)
	assert.Equal(t, config.SentinelPurposeCode, r.PurposeCode)
	assert.Equal(t, config.SentinelProjectID, r.ProjectID)
	assert.Equal(t, config.SentinelProjectTitle, r.ProjectTitle)
	assert.Equal(t, schema.IndicatorClimateUnspecified, r.Indicator)
	assert.False(t, r.Matched)
}

func TestAggregateUnmatchedKeepsReportedAgency(t *testing.T) {
	rows := AggregateUnmatched([]Transaction{
		{Year: 2020, ProviderCode: "1", AgencyCode: "12", USDCommitment: 10, USDDisbursement: NA(), USDGrantEquivalent: NA(), USDNetDisbursement: NA()},
	})
	require.Len(t, rows, 1)
	assert.Equal(t, "12", rows[0].AgencyCode)
}

func TestAggregateUnmatchedEmpty(t *testing.T) {
	assert.Empty(t, AggregateUnmatched(nil))
}
