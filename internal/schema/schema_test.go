package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsUnknownColumns(t *testing.T) {
	require.NoError(t, Validate(ColYear, ColProviderCode, ColUSDCommitment))
	require.Error(t, Validate(ColYear, Column("donor_code")))
}

func TestKindOf(t *testing.T) {
	k, err := KindOf(ColUSDCommitment)
	require.NoError(t, err)
	assert.Equal(t, KindMoney, k)

	k, err = KindOf(ColAdaptationMarker)
	require.NoError(t, err)
	assert.Equal(t, KindMarker, k)

	_, err = KindOf(Column("bogus"))
	require.Error(t, err)
}

func TestColumnsCoverHelperLists(t *testing.T) {
	all := map[Column]bool{}
	for _, c := range Columns() {
		all[c] = true
	}
	for _, c := range FlowColumns() {
		assert.True(t, all[c], "flow column %s not registered", c)
	}
	for _, c := range ClimateValueColumns() {
		assert.True(t, all[c], "climate value column %s not registered", c)
	}
	for _, c := range IdentityColumns() {
		assert.True(t, all[c], "identity column %s not registered", c)
	}
}

func TestIndicatorParseRoundTrip(t *testing.T) {
	for _, ind := range []Indicator{
		IndicatorAdaptation, IndicatorMitigation, IndicatorCrossCutting,
		IndicatorNotClimate, IndicatorClimateUnspecified,
	} {
		got, err := ParseIndicator(ind.String())
		require.NoError(t, err)
		assert.Equal(t, ind, got)
	}
	_, err := ParseIndicator("biodiversity")
	require.Error(t, err)
}

func TestFlowKindParseRoundTrip(t *testing.T) {
	for _, f := range FlowKinds() {
		got, err := ParseFlowKind(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
		assert.NotEmpty(t, string(f.Column()))
	}
	got, err := ParseFlowKind("disbursement")
	require.NoError(t, err)
	assert.Equal(t, FlowDisbursement, got)
}

func TestMethodologyParse(t *testing.T) {
	m, err := ParseMethodology("highest_marker")
	require.NoError(t, err)
	assert.Equal(t, MethodologyHighestMarker, m)

	m, err = ParseMethodology("oecd")
	require.NoError(t, err)
	assert.Equal(t, MethodologyOECDAdditive, m)

	_, err = ParseMethodology("bespoke")
	require.Error(t, err)
}

func TestCurrencyAndPriceBasisParse(t *testing.T) {
	c, err := ParseCurrency("eur")
	require.NoError(t, err)
	assert.Equal(t, CurrencyEUR, c)
	_, err = ParseCurrency("XXX")
	require.Error(t, err)

	p, err := ParsePriceBasis("constant")
	require.NoError(t, err)
	assert.Equal(t, PriceConstant, p)
	_, err = ParsePriceBasis("deflated")
	require.Error(t, err)
}
