package models

// Chart derivation: pure, deterministic and idempotent. Derived payloads
// are cached on the plan's sources collection keyed by plan version, so
// reads at an unchanged version return byte-identical output without
// recomputing.

var radarAxes = []string{"Strength", "Weakness", "Opportunity", "Threat"}

// RadarFromSWOT maps the SWOT section to radar coordinates on a 0-10
// scale. Model-derived axis scores win when present; otherwise the axis
// weight falls back to the size of its set.
func RadarFromSWOT(swot SWOT) []RadarPoint {
	counts := map[string]int{
		"Strength":    len(swot.Strengths),
		"Weakness":    len(swot.Weaknesses),
		"Opportunity": len(swot.Opportunities),
		"Threat":      len(swot.Threats),
	}
	points := make([]RadarPoint, 0, len(radarAxes))
	for _, axis := range radarAxes {
		value := float64(0)
		if score, ok := swot.Scores[axis]; ok {
			value = Clamp(score, 0, 10)
		} else {
			value = Clamp(float64(counts[axis])*2.5, 0, 10)
		}
		points = append(points, RadarPoint{Axis: axis, Value: value})
	}
	return points
}

// PieFromCompetitors maps competitor shares to slices normalized to sum
// to 1.0. Zero and negative weights are excluded; order is preserved.
func PieFromCompetitors(competitors []Competitor) []PieSlice {
	total := 0.0
	for _, c := range competitors {
		if c.SharePercent > 0 {
			total += c.SharePercent
		}
	}
	if total <= 0 {
		return nil
	}
	slices := make([]PieSlice, 0, len(competitors))
	for _, c := range competitors {
		if c.SharePercent <= 0 {
			continue
		}
		slices = append(slices, PieSlice{Name: c.Name, Weight: c.SharePercent / total})
	}
	return slices
}

// BarsFromKPIs maps the KPI summary to bar series, order preserved.
func BarsFromKPIs(kpis []KPI) []BarSeries {
	if len(kpis) == 0 {
		return nil
	}
	bars := make([]BarSeries, 0, len(kpis))
	for _, k := range kpis {
		bars = append(bars, BarSeries{Label: k.Name, Value: k.Value, Unit: k.Unit})
	}
	return bars
}

// DeriveCharts recomputes every chart payload from current plan state.
func DeriveCharts(plan *AccountPlan) *ChartPayloads {
	return &ChartPayloads{
		PlanVersion: plan.Version,
		Radar:       RadarFromSWOT(plan.SWOT),
		Pie:         PieFromCompetitors(plan.Competitors),
		Bars:        BarsFromKPIs(plan.KPIs),
	}
}
