package domain

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// QcVerdict is the result of one rule applied to one variable.
type QcVerdict struct {
	Variable Variable           `json:"variable"`
	Rule     string             `json:"rule_name"`
	Status   Status             `json:"status"`
	Severity Severity           `json:"severity"`
	Detail   string             `json:"detail"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

// Pass builds a passing verdict.
func Pass(v Variable, rule, detail string) QcVerdict {
	return QcVerdict{Variable: v, Rule: rule, Status: StatusPass, Severity: SeverityNone, Detail: detail}
}

// Fail builds a failing verdict with the given severity.
func Fail(v Variable, rule string, severity Severity, detail string) QcVerdict {
	return QcVerdict{Variable: v, Rule: rule, Status: StatusFail, Severity: severity, Detail: detail}
}

// Inconclusive builds a verdict for a check that could not be evaluated.
func Inconclusive(v Variable, rule, detail string) QcVerdict {
	return QcVerdict{Variable: v, Rule: rule, Status: StatusInconclusive, Severity: SeverityNone, Detail: detail}
}

// Passed reports whether the rule passed.
func (v QcVerdict) Passed() bool { return v.Status == StatusPass }

// Failed reports whether the rule failed.
func (v QcVerdict) Failed() bool { return v.Status == StatusFail }

// Key identifies the verdict within a packet: "<variable>/<rule>".
func (v QcVerdict) Key() string { return CheckKey(v.Variable, v.Rule) }

// CheckKey names one check on one variable, e.g. "temperature/temporal_step".
func CheckKey(v Variable, rule string) string { return string(v) + "/" + rule }

// WithMetric returns a copy of v with the named metric set.
func (v QcVerdict) WithMetric(name string, value float64) QcVerdict {
	m := make(map[string]float64, len(v.Metrics)+1)
	for k, val := range v.Metrics {
		m[k] = val
	}
	m[name] = value
	v.Metrics = m
	return v
}

// MarshalJSON adds the derived "passed" flag to the wire form.
func (v QcVerdict) MarshalJSON() ([]byte, error) {
	type plain QcVerdict
	return json.Marshal(struct {
		plain
		Passed bool `json:"passed"`
	}{plain(v), v.Passed()})
}

// AnomalySummary aggregates the verdicts for one packet.
type AnomalySummary struct {
	StationID  string      `json:"station_id"`
	ObservedAt time.Time   `json:"observed_at"`
	PacketType string      `json:"packet_type"`
	Verdicts   []QcVerdict `json:"verdicts"`
	Severity   Severity    `json:"severity"`
}

// NewAnomalySummary sorts the verdicts by (variable, rule) and derives the
// composite severity as the maximum over failing verdicts.
func NewAnomalySummary(stationID string, observedAt time.Time, packetType string, verdicts []QcVerdict) AnomalySummary {
	sorted := slices.Clone(verdicts)
	slices.SortStableFunc(sorted, func(a, b QcVerdict) int {
		if c := strings.Compare(string(a.Variable), string(b.Variable)); c != 0 {
			return c
		}
		return strings.Compare(a.Rule, b.Rule)
	})

	severity := SeverityNone
	for _, v := range sorted {
		if v.Failed() {
			severity = MaxSeverity(severity, v.Severity)
		}
	}

	return AnomalySummary{
		StationID:  stationID,
		ObservedAt: observedAt,
		PacketType: packetType,
		Verdicts:   sorted,
		Severity:   severity,
	}
}

// Passed reports whether no verdict failed.
func (s AnomalySummary) Passed() bool {
	return len(s.Anomalies()) == 0
}

// Anomalies returns the failing verdicts.
func (s AnomalySummary) Anomalies() []QcVerdict {
	return s.filter(StatusFail)
}

// Inconclusive returns the verdicts that could not be evaluated.
func (s AnomalySummary) Inconclusive() []QcVerdict {
	return s.filter(StatusInconclusive)
}

// FailingRules returns the distinct rule names of failing verdicts, in verdict order.
func (s AnomalySummary) FailingRules() []string {
	var rules []string
	for _, v := range s.Anomalies() {
		if !slices.Contains(rules, v.Rule) {
			rules = append(rules, v.Rule)
		}
	}
	return rules
}

// FailingChecks returns the distinct check keys of failing verdicts, in
// verdict order.
func (s AnomalySummary) FailingChecks() []string {
	var keys []string
	for _, v := range s.Anomalies() {
		if k := v.Key(); !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Verdict looks up the verdict for (variable, rule).
func (s AnomalySummary) Verdict(v Variable, rule string) (QcVerdict, bool) {
	for _, verdict := range s.Verdicts {
		if verdict.Variable == v && verdict.Rule == rule {
			return verdict, true
		}
	}
	return QcVerdict{}, false
}

func (s AnomalySummary) filter(status Status) []QcVerdict {
	var out []QcVerdict
	for _, v := range s.Verdicts {
		if v.Status == status {
			out = append(out, v)
		}
	}
	return out
}
