package qc

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/couchcryptid/station-qc/internal/domain"
)

// ExtremeValue fails critical when value lies outside the absolute range.
func ExtremeValue(v domain.Variable, value float64, r Range) domain.QcVerdict {
	if !r.Contains(value) {
		return domain.Fail(v, RuleExtremeValue, domain.SeverityCritical,
			fmt.Sprintf("Physical limit failed: %g is out of valid range [%g, %g].", value, r.Min, r.Max)).
			WithMetric("value", value)
	}
	return domain.Pass(v, RuleExtremeValue, fmt.Sprintf("%g within [%g, %g].", value, r.Min, r.Max))
}

// TemporalStep compares current against the latest history sample strictly
// before it. history must be ordered oldest first. An empty history is a cold
// start and passes.
func TemporalStep(v domain.Variable, current domain.Sample, history []domain.Sample, limit StepLimit) domain.QcVerdict {
	if current.Timestamp.IsZero() {
		return domain.Inconclusive(v, RuleTemporalStep, "Missing timestamp; step check skipped.")
	}
	if len(history) == 0 {
		return domain.Pass(v, RuleTemporalStep, "No prior reading (cold start).")
	}

	prev, ok := predecessor(history, current.Timestamp)
	if !ok {
		return domain.Inconclusive(v, RuleTemporalStep, "No earlier reading; non-positive time delta.")
	}

	elapsed := current.Timestamp.Sub(prev.Timestamp)
	if limit.MaxGap > 0 && elapsed > limit.MaxGap {
		return domain.Inconclusive(v, RuleTemporalStep,
			fmt.Sprintf("Previous reading is %s old (max gap %s); step check skipped.", elapsed, limit.MaxGap))
	}

	minutes := elapsed.Minutes()
	change := math.Abs(current.Value - prev.Value)
	rate := change / minutes

	if rate <= limit.MaxRatePerMinute {
		return domain.Pass(v, RuleTemporalStep, fmt.Sprintf("Step %.2f over %s.", change, elapsed)).
			WithMetric("step_change", change).
			WithMetric("step_rate", rate)
	}

	severity := domain.SeverityWarn
	if rate >= limit.MaxRatePerMinute*limit.CriticalRatio {
		severity = domain.SeverityCritical
	}
	return domain.Fail(v, RuleTemporalStep, severity,
		fmt.Sprintf("Step check failed: sudden jump of %.2f over %s (%.2f/min, limit %g/min).",
			change, elapsed, rate, limit.MaxRatePerMinute)).
		WithMetric("step_change", change).
		WithMetric("step_rate", rate).
		WithMetric("elapsed_minutes", minutes)
}

func predecessor(history []domain.Sample, at time.Time) (domain.Sample, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Timestamp.Before(at) {
			return history[i], true
		}
	}
	return domain.Sample{}, false
}

// SpatialConsistency compares value against the neighbor snapshot. Neighbors
// without a finite value are ignored; with none left the check is inconclusive.
func SpatialConsistency(v domain.Variable, value float64, neighbors []domain.Neighbor, limit SpatialLimit) domain.QcVerdict {
	values := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Value != nil && !math.IsNaN(*n.Value) && !math.IsInf(*n.Value, 0) {
			values = append(values, *n.Value)
		}
	}
	if len(values) == 0 {
		return domain.Inconclusive(v, RuleSpatialConsistency, "No neighbor readings; spatial check skipped.")
	}

	center := mean(values)
	if limit.Center == "median" {
		center = median(values)
	}
	spread := stddev(values)
	allowed := math.Max(limit.SpreadMultiple*spread, limit.MinDelta)
	deviation := math.Abs(value - center)

	verdict := domain.Pass(v, RuleSpatialConsistency,
		fmt.Sprintf("Deviation %.2f from %d neighbors within %.2f.", deviation, len(values), allowed))
	if deviation > allowed {
		verdict = domain.Fail(v, RuleSpatialConsistency, domain.SeverityWarn,
			fmt.Sprintf("Spatial check failed: deviation %.2f from neighbor %s %.2f exceeds %.2f.",
				deviation, limit.Center, center, allowed))
	}
	return verdict.
		WithMetric("spatial_deviation", deviation).
		WithMetric("neighbor_center", center).
		WithMetric("neighbor_spread", spread).
		WithMetric("neighbor_count", float64(len(values)))
}

// RadarSNR fails critical when the signal-to-noise ratio is below the floor.
func RadarSNR(snr float64, limits RadarLimits) domain.QcVerdict {
	if snr < limits.SNRFloorDB {
		return domain.Fail(domain.RadarSNR, RuleRadarSNRLow, domain.SeverityCritical,
			fmt.Sprintf("Low SNR detected: %g dB (floor %g dB).", snr, limits.SNRFloorDB)).
			WithMetric("snr_db", snr)
	}
	return domain.Pass(domain.RadarSNR, RuleRadarSNRLow, fmt.Sprintf("SNR %g dB.", snr))
}

// ReflectivityBias fails warn beyond the tolerance and critical beyond the
// hard calibration limit.
func ReflectivityBias(bias float64, limits RadarLimits) domain.QcVerdict {
	abs := math.Abs(bias)
	switch {
	case abs > limits.BiasCriticalDBZ:
		return domain.Fail(domain.RadarReflectivityBias, RuleReflectivityBias, domain.SeverityCritical,
			fmt.Sprintf("Reflectivity bias %g dBZ beyond hard limit %g dBZ.", bias, limits.BiasCriticalDBZ)).
			WithMetric("bias_dbz", bias)
	case abs > limits.BiasToleranceDBZ:
		return domain.Fail(domain.RadarReflectivityBias, RuleReflectivityBias, domain.SeverityWarn,
			fmt.Sprintf("Reflectivity bias high: %g dBZ (tolerance %g dBZ).", bias, limits.BiasToleranceDBZ)).
			WithMetric("bias_dbz", bias)
	}
	return domain.Pass(domain.RadarReflectivityBias, RuleReflectivityBias, fmt.Sprintf("Bias %g dBZ.", bias))
}

// CalmWind warns when a calm reading reports a non-zero direction.
func CalmWind(speed, direction float64) domain.QcVerdict {
	if speed == 0 && direction != 0 {
		return domain.Fail(domain.WindDirection, RuleCalmWindDirection, domain.SeverityWarn,
			fmt.Sprintf("Calm wind with non-zero direction %g.", direction))
	}
	return domain.Pass(domain.WindDirection, RuleCalmWindDirection, "Wind vector consistent.")
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// stddev is the population standard deviation.
func stddev(values []float64) float64 {
	m := mean(values)
	var sum float64
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)))
}
