package diagnostics

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/couchcryptid/station-qc/internal/domain"
	"github.com/couchcryptid/station-qc/internal/qc"
)

// MinConfidence is the confidence below which a classification is reported
// as inconclusive.
const MinConfidence = 0.6

// maxNeighborWeight caps the weather evidence from corroborating neighbors.
const maxNeighborWeight = 2.0

// hints name the likely cause when a rule points at the device.
var hints = map[string]string{
	qc.RuleExtremeValue:       "Sensor failure suspected.",
	qc.RuleRadarSNRLow:        "Radar SNR drop; check attenuator or blockage.",
	qc.RuleReflectivityBias:   "Radar calibration drift.",
	qc.RuleCalmWindDirection:  "Anemometer or vane fault; inspect bearings and cabling.",
	qc.RulePrecipHumidity:     "Rain gauge double tipping or blockage.",
	qc.RulePrecipFreezing:     "Precipitation sensor heating failure.",
	qc.RulePrecipRegime:       "Rain gauge mechanical issue.",
	qc.RuleDewPointBounds:     "Hygrometer or thermometer drift.",
	qc.RuleTemporalStep:       "Sensor offset or intermittent connection.",
	qc.RuleSpatialConsistency: "Sensor bias or shielding issue.",
}

// weatherSensitive rules can be tripped by real severe weather.
var weatherSensitive = []string{
	qc.RuleSpatialConsistency,
	qc.RuleTemporalStep,
	qc.RuleRadarSNRLow,
	qc.RuleReflectivityBias,
	qc.RulePrecipHumidity,
	qc.RulePrecipRegime,
}

// RuleBased is the default, deterministic diagnosis backend. It weighs
// evidence for a device fault against evidence for real weather and reports
// the winner with confidence winner/(fault+weather).
type RuleBased struct{}

// NewRuleBased returns the rule-based backend.
func NewRuleBased() *RuleBased { return &RuleBased{} }

// evidence accumulates weighted signals and their explanations.
type evidence struct {
	fault, weather float64
	notes          []string
}

func (e *evidence) forFault(w float64, note string) {
	e.fault += w
	e.notes = append(e.notes, note)
}

func (e *evidence) forWeather(w float64, note string) {
	e.weather += w
	e.notes = append(e.notes, note)
}

// Diagnose never returns an error.
func (r *RuleBased) Diagnose(_ context.Context, req Request) (domain.DiagnosisResult, error) {
	return r.Classify(req), nil
}

// Classify is the pure decision table behind Diagnose.
func (r *RuleBased) Classify(req Request) domain.DiagnosisResult {
	s := req.Summary
	failures := diagnosticFailures(s)

	if len(failures) == 0 {
		if evidenceLost(s) {
			return result(domain.ClassInconclusive, 0.5, "Required fields missing; no rule could be evaluated.")
		}
		note := "All QC checks passed."
		if len(s.Anomalies()) > 0 {
			note = "Only arrival-order warnings raised; readings nominal."
		}
		return result(domain.ClassNominal, 1, note)
	}

	stormy := Stormy(req.Metadata)
	var ev evidence

	for _, v := range failures {
		switch v.Rule {
		case qc.RuleExtremeValue:
			ev.forFault(2, fmt.Sprintf("%s outside physical bounds.", v.Variable))
		case qc.RuleRadarSNRLow:
			ev.forFault(1.5, "SNR below operational floor.")
		case qc.RuleReflectivityBias:
			ev.forFault(1, "Reflectivity bias exceeds tolerance.")
		case qc.RulePrecipHumidity, qc.RulePrecipFreezing, qc.RulePrecipRegime, qc.RuleDewPointBounds:
			ev.forFault(1, "Physics relationship violated across variables.")
		case qc.RuleCalmWindDirection:
			ev.forFault(0.5, "Wind vane reports direction in calm air.")
		case qc.RuleSpatialConsistency:
			if !stormy {
				ev.forFault(1, "High deviation from neighbors with calm weather context.")
			}
		case qc.RuleTemporalStep:
			if !stormy {
				w := 0.5
				if v.Severity == domain.SeverityCritical {
					w = 1
				}
				ev.forFault(w, fmt.Sprintf("%s jump without weather to explain it.", v.Variable))
			}
		}
	}

	if stormy && slices.ContainsFunc(failures, func(v domain.QcVerdict) bool {
		return slices.Contains(weatherSensitive, v.Rule)
	}) {
		ev.forWeather(1.5, "Metadata reports severe weather.")
	}

	corroborated := 0
	for _, v := range uniqueChecks(failures) {
		corroborated += req.Neighbors.Corroborating(v.Variable, v.Rule)
	}
	if corroborated > 0 {
		ev.forWeather(math.Min(float64(corroborated), maxNeighborWeight),
			fmt.Sprintf("%d neighbor station(s) failed the same checks.", corroborated))
	} else if len(uniqueVariables(failures)) == 1 {
		ev.forFault(1, "Isolated single-variable failure at one station.")
	}

	return decide(ev, failures)
}

func decide(ev evidence, failures []domain.QcVerdict) domain.DiagnosisResult {
	total := ev.fault + ev.weather
	rationale := strings.Join(ev.notes, " ")
	if total == 0 {
		return result(domain.ClassInconclusive, 0.5, "Anomalies raised but no rule weighs toward a cause; manual review recommended.")
	}

	class := domain.ClassDeviceFault
	winner := ev.fault
	switch {
	case ev.weather > ev.fault:
		class, winner = domain.ClassWeatherExtreme, ev.weather
	case ev.weather == ev.fault:
		return result(domain.ClassInconclusive, 0.5, "Fault and weather evidence balanced. "+rationale)
	}

	confidence := round2(winner / total)
	if confidence < MinConfidence {
		return result(domain.ClassInconclusive, confidence, rationale)
	}
	if class == domain.ClassDeviceFault {
		if hint, ok := hints[failures[0].Rule]; ok {
			rationale = hint + " " + rationale
		}
	}
	return result(class, confidence, rationale)
}

// diagnosticFailures drops failures that say nothing about the measurement.
func diagnosticFailures(s domain.AnomalySummary) []domain.QcVerdict {
	var out []domain.QcVerdict
	for _, v := range s.Anomalies() {
		if v.Rule != qc.RuleOutOfOrder {
			out = append(out, v)
		}
	}
	// Strongest evidence first so the hint names the most severe failure.
	slices.SortStableFunc(out, func(a, b domain.QcVerdict) int {
		return b.Severity.Rank() - a.Severity.Rank()
	})
	return out
}

func evidenceLost(s domain.AnomalySummary) bool {
	lost := false
	for _, v := range s.Verdicts {
		if v.Passed() {
			return false
		}
		if qc.EvidenceLoss(v.Rule) {
			lost = true
		}
	}
	return lost
}

// uniqueChecks keeps the first verdict per (variable, rule).
func uniqueChecks(vs []domain.QcVerdict) []domain.QcVerdict {
	var out []domain.QcVerdict
	for _, v := range vs {
		if !slices.ContainsFunc(out, func(o domain.QcVerdict) bool { return o.Key() == v.Key() }) {
			out = append(out, v)
		}
	}
	return out
}

func uniqueVariables(vs []domain.QcVerdict) []domain.Variable {
	var out []domain.Variable
	for _, v := range vs {
		if !slices.Contains(out, v.Variable) {
			out = append(out, v.Variable)
		}
	}
	return out
}

func result(c domain.Classification, confidence float64, rationale string) domain.DiagnosisResult {
	return domain.DiagnosisResult{
		Classification: c,
		Confidence:     confidence,
		Rationale:      rationale,
		Backend:        domain.BackendRuleBased,
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
