package climate

import (
	"fmt"

	"ClimFinLedger/internal/engine"
	"ClimFinLedger/internal/schema"
)

// ImputedRow attributes climate finance to a bilateral provider through its
// core contribution to a multilateral channel, apportioned by that channel's
// own rolling climate-spending share.
type ImputedRow struct {
	Year         int16            `json:"year"`
	ProviderCode string           `json:"provider_code"`
	ChannelCode  string           `json:"channel_code"`
	Indicator    schema.Indicator `json:"indicator"`
	Share        float64          `json:"share"`
	Value        float64          `json:"value"`
}

// channelSeries converts channel-level ledger rows into the series points the
// rolling share calculation consumes: group (channel, indicator), share
// taken against the channel total across indicators.
func channelSeries(rows []engine.IndicatorRow) []engine.SeriesPoint {
	points := make([]engine.SeriesPoint, 0, len(rows))
	for _, r := range rows {
		if r.Flow != schema.FlowCommitment {
			continue
		}
		points = append(points, engine.SeriesPoint{
			GroupKey: r.ProviderCode + "|" + r.Indicator.String(),
			ShareKey: r.ProviderCode,
			Year:     r.Year,
			Value:    r.Value,
		})
	}
	return points
}

// ImputeMultilateral computes imputed bilateral climate finance: for every
// core contribution, the channel's rolling share per climate indicator is
// applied to the contributed amount. Channel ledger rows are expected to
// identify channels in their provider column (the multilateral preset's
// output shape).
func ImputeMultilateral(contributions []Contribution, channelLedger []engine.IndicatorRow, window int) ([]ImputedRow, error) {
	if window < 1 {
		return nil, fmt.Errorf("imputation: rolling window %d must be positive", window)
	}

	shares, err := engine.RollingShare(channelSeries(channelLedger), window)
	if err != nil {
		return nil, err
	}

	type shareKey struct {
		channel   string
		indicator string
		year      int16
	}
	shareByKey := make(map[shareKey]float64, len(shares))
	for _, p := range shares {
		if engine.IsNA(p.Value) {
			continue
		}
		channel, indicator := splitGroupKey(p.GroupKey)
		shareByKey[shareKey{channel: channel, indicator: indicator, year: p.Year}] = p.Value
	}

	climate := []schema.Indicator{
		schema.IndicatorAdaptation,
		schema.IndicatorMitigation,
		schema.IndicatorCrossCutting,
	}

	var out []ImputedRow
	for _, c := range contributions {
		for _, ind := range climate {
			share, ok := shareByKey[shareKey{channel: c.ChannelCode, indicator: ind.String(), year: c.Year}]
			if !ok || share == 0 {
				continue
			}
			out = append(out, ImputedRow{
				Year:         c.Year,
				ProviderCode: c.ProviderCode,
				ChannelCode:  c.ChannelCode,
				Indicator:    ind,
				Share:        share,
				Value:        share * c.Value,
			})
		}
	}
	return out, nil
}

func splitGroupKey(key string) (channel, indicator string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
