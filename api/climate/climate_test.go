package climate

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"ClimFinLedger/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResidualsHandlerSumsLeftoverClaims(t *testing.T) {
	cd := NewClimateData(nil, nil)

	rio := pipelineMarker()
	components := pipelineMarker()
	components.AdaptationMarker = engine.MarkerComponents
	components.AdaptationValue = 100
	components.MitigationValue = 80
	components.CrossCuttingValue = 30

	cd.mu.Lock()
	cd.residualMarkers = []engine.Marker{rio, components}
	cd.residualTransaction = []engine.Transaction{pipelineTransaction()}
	cd.mu.Unlock()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/climate/residuals", nil)
	ResidualsHandler(cd).ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var body struct {
		UnmatchedMarkers      int                `json:"unmatched_markers"`
		UnmatchedTransactions int                `json:"unmatched_transactions"`
		Unclaimed             map[string]float64 `json:"unclaimed_by_indicator"`
		Transactions          []transactionJSON  `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, 2, body.UnmatchedMarkers)
	assert.Equal(t, 1, body.UnmatchedTransactions)
	// Rio row claims 40 adaptation; the components row nets out its
	// cross-cutting overlap before counting per objective.
	assert.InDelta(t, 110, body.Unclaimed["Adaptation"], 1e-9)
	assert.InDelta(t, 50, body.Unclaimed["Mitigation"], 1e-9)
	assert.InDelta(t, 30, body.Unclaimed["Cross-cutting"], 1e-9)

	// Unreported flows come through as null, reported ones as numbers.
	require.Len(t, body.Transactions, 1)
	tx := body.Transactions[0]
	require.NotNil(t, tx.Commitment)
	assert.InDelta(t, 100, *tx.Commitment, 1e-9)
	assert.Nil(t, tx.Disbursement)
	assert.Nil(t, tx.GrantEquivalent)
}

func TestResidualsHandlerEmpty(t *testing.T) {
	cd := NewClimateData(nil, nil)

	rec := httptest.NewRecorder()
	ResidualsHandler(cd).ServeHTTP(rec, httptest.NewRequest("GET", "/climate/residuals", nil))
	require.Equal(t, 200, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 0, body["unmatched_markers"])
	assert.EqualValues(t, 0, body["unmatched_transactions"])
}
