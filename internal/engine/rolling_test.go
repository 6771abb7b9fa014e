package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollingShareWindowValidation(t *testing.T) {
	_, err := RollingShare([]SeriesPoint{{GroupKey: "a", ShareKey: "s", Year: 2020, Value: 1}}, 0)
	require.Error(t, err)
}

func TestRollingShareEmptyInput(t *testing.T) {
	out, err := RollingShare(nil, 2)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRollingShareTrailingWindow(t *testing.T) {
	points := []SeriesPoint{
		{GroupKey: "ch|Adaptation", ShareKey: "ch", Year: 2019, Value: 10},
		{GroupKey: "ch|Adaptation", ShareKey: "ch", Year: 2020, Value: 20},
		{GroupKey: "ch|Adaptation", ShareKey: "ch", Year: 2021, Value: 30},
		{GroupKey: "ch|Other", ShareKey: "ch", Year: 2019, Value: 30},
		{GroupKey: "ch|Other", ShareKey: "ch", Year: 2020, Value: 20},
		{GroupKey: "ch|Other", ShareKey: "ch", Year: 2021, Value: 10},
	}
	out, err := RollingShare(points, 2)
	require.NoError(t, err)

	// Warm-up year 2019 is dropped: two groups x two remaining years.
	require.Len(t, out, 4)
	got := map[string]map[int16]float64{}
	for _, p := range out {
		if got[p.GroupKey] == nil {
			got[p.GroupKey] = map[int16]float64{}
		}
		got[p.GroupKey][p.Year] = p.Value
	}

	// 2020: rolled adaptation 10+20=30 over total 30+50=80.
	assert.InDelta(t, 30.0/80, got["ch|Adaptation"][2020], 1e-12)
	assert.InDelta(t, 50.0/80, got["ch|Other"][2020], 1e-12)
	// 2021: rolled adaptation 20+30=50, rolled other 20+10=30, total 80.
	assert.InDelta(t, 50.0/80, got["ch|Adaptation"][2021], 1e-12)
	assert.InDelta(t, 30.0/80, got["ch|Other"][2021], 1e-12)
}

func TestRollingShareMissingYearsContributeZero(t *testing.T) {
	points := []SeriesPoint{
		{GroupKey: "a", ShareKey: "s", Year: 2019, Value: 100},
		{GroupKey: "a", ShareKey: "s", Year: 2021, Value: 50},
	}
	out, err := RollingShare(points, 2)
	require.NoError(t, err)

	byYear := map[int16]float64{}
	for _, p := range out {
		byYear[p.Year] = p.Value
	}
	// 2020's window still sees 2019; 2021's window covers only the gap year
	// and itself. The single group always holds the full share.
	assert.InDelta(t, 1, byYear[2020], 1e-12)
	assert.InDelta(t, 1, byYear[2021], 1e-12)
}

func TestRollingShareZeroDenominatorIsMissing(t *testing.T) {
	points := []SeriesPoint{
		{GroupKey: "a", ShareKey: "s", Year: 2019, Value: 10},
		{GroupKey: "a", ShareKey: "s", Year: 2020, Value: 0},
	}
	out, err := RollingShare(points, 1)
	require.NoError(t, err)

	byYear := map[int16]float64{}
	for _, p := range out {
		byYear[p.Year] = p.Value
	}
	assert.InDelta(t, 1, byYear[2019], 1e-12)
	assert.True(t, IsNA(byYear[2020]))
}

func TestRollingShareDuplicatePointsSumWithinYear(t *testing.T) {
	points := []SeriesPoint{
		{GroupKey: "a", ShareKey: "s", Year: 2020, Value: 10},
		{GroupKey: "a", ShareKey: "s", Year: 2020, Value: 15},
		{GroupKey: "b", ShareKey: "s", Year: 2020, Value: 75},
	}
	out, err := RollingShare(points, 1)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 0.25, out[0].Value, 1e-12)
	assert.InDelta(t, 0.75, out[1].Value, 1e-12)
}
