package formulas

// DrawdownMetrics holds drawdown statistics computed from a value series.
type DrawdownMetrics struct {
	MaxDrawdown     float64 `json:"max_drawdown"`     // Most negative peak-to-trough decline (<= 0)
	CurrentDrawdown float64 `json:"current_drawdown"` // Drawdown at the last observation (<= 0)
	DaysInDrawdown  int     `json:"days_in_drawdown"` // Consecutive periods below the running peak
	PeakValue       float64 `json:"peak_value"`
	CurrentValue    float64 `json:"current_value"`
}

// CalculateDrawdownMetrics walks a cumulative value series tracking the
// running peak. Drawdown at each point is (current - peak) / peak, so the
// result is non-positive and equals 0 only for a monotonically
// non-decreasing curve.
func CalculateDrawdownMetrics(values []float64) DrawdownMetrics {
	if len(values) == 0 {
		return DrawdownMetrics{}
	}

	peak := values[0]
	maxDD := 0.0
	daysInDD := 0

	for _, v := range values {
		if v >= peak {
			peak = v
			daysInDD = 0
		} else {
			daysInDD++
		}
		if peak > 0 {
			dd := (v - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}

	current := values[len(values)-1]
	currentDD := 0.0
	if peak > 0 && current < peak {
		currentDD = (current - peak) / peak
	}

	return DrawdownMetrics{
		MaxDrawdown:     maxDD,
		CurrentDrawdown: currentDD,
		DaysInDrawdown:  daysInDD,
		PeakValue:       peak,
		CurrentValue:    current,
	}
}

// MaxDrawdownFromReturns builds the cumulative growth curve implied by a
// return series (starting at 1.0) and returns its maximum drawdown.
func MaxDrawdownFromReturns(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	curve := make([]float64, len(returns)+1)
	curve[0] = 1.0
	for i, r := range returns {
		curve[i+1] = curve[i] * (1 + r)
	}
	return CalculateDrawdownMetrics(curve).MaxDrawdown
}
