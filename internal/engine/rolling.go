package engine

import (
	"fmt"
	"sort"
)

// SeriesPoint is one (group, year) observation fed to the rolling share
// calculation. GroupKey identifies the groupby tuple (e.g. channel x
// provider x indicator), ShareKey the coarser tuple the share is taken
// against (e.g. channel alone, i.e. across all providers).
type SeriesPoint struct {
	GroupKey string
	ShareKey string
	Year     int16
	Value    float64
}

// RollingShare replaces each group's yearly value with its trailing
// rolling-window share of the ShareKey total.
//
// Years missing inside a group's range contribute 0 to the window. Years in
// the warm-up period (before minYear+window-1) are dropped, not zero-filled.
func RollingShare(points []SeriesPoint, window int) ([]SeriesPoint, error) {
	if window < 1 {
		return nil, fmt.Errorf("rolling share: window %d must be positive", window)
	}
	if len(points) == 0 {
		return nil, nil
	}

	type groupID struct {
		group string
		share string
	}

	// Step 1: sum values within (group, year).
	sums := make(map[groupID]map[int16]float64)
	minYear, maxYear := points[0].Year, points[0].Year
	var order []groupID
	for _, p := range points {
		id := groupID{group: p.GroupKey, share: p.ShareKey}
		byYear, ok := sums[id]
		if !ok {
			byYear = make(map[int16]float64)
			sums[id] = byYear
			order = append(order, id)
		}
		byYear[p.Year] += orZero(p.Value)
		if p.Year < minYear {
			minYear = p.Year
		}
		if p.Year > maxYear {
			maxYear = p.Year
		}
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].group != order[j].group {
			return order[i].group < order[j].group
		}
		return order[i].share < order[j].share
	})

	// Step 2: trailing rolling sum over a dense year range.
	rolled := make(map[groupID]map[int16]float64, len(sums))
	for id, byYear := range sums {
		out := make(map[int16]float64, int(maxYear-minYear)+1)
		for y := minYear; y <= maxYear; y++ {
			sum := 0.0
			for w := 0; w < window; w++ {
				yy := y - int16(w)
				if yy < minYear {
					break
				}
				sum += byYear[yy]
			}
			out[y] = sum
		}
		rolled[id] = out
	}

	// Step 4 denominator: share-group totals of the rolled values.
	totals := make(map[string]map[int16]float64)
	for id, byYear := range rolled {
		t, ok := totals[id.share]
		if !ok {
			t = make(map[int16]float64)
			totals[id.share] = t
		}
		for y, v := range byYear {
			t[y] += v
		}
	}

	// Step 3: drop warm-up years, then divide.
	firstYear := minYear + int16(window) - 1
	var out []SeriesPoint
	for _, id := range order {
		for y := firstYear; y <= maxYear; y++ {
			num := rolled[id][y]
			den := totals[id.share][y]
			share := NA()
			if den != 0 {
				share = num / den
			}
			out = append(out, SeriesPoint{GroupKey: id.group, ShareKey: id.share, Year: y, Value: share})
		}
	}
	return out, nil
}
