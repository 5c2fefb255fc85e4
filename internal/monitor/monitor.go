// Package monitor runs the QC toolbox over incoming packets and keeps the
// station history current.
package monitor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/station-qc/internal/domain"
	"github.com/couchcryptid/station-qc/internal/history"
	"github.com/couchcryptid/station-qc/internal/observability"
	"github.com/couchcryptid/station-qc/internal/qc"
)

// Monitor dispatches packets to the applicable checks. Packets for one
// station must be passed to Check one at a time, in arrival order.
type Monitor struct {
	toolbox *qc.Toolbox
	store   *history.Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Monitor reading from and appending to store.
func New(toolbox *qc.Toolbox, store *history.Store, logger *slog.Logger, metrics *observability.Metrics) *Monitor {
	return &Monitor{toolbox: toolbox, store: store, logger: logger, metrics: metrics}
}

// reading is one measured value moving through the checks.
type reading struct {
	variable domain.Variable
	value    float64
}

// Check evaluates every applicable rule for p, appends the measured values
// to history, and returns the aggregated verdicts. It never fails: missing
// or malformed fields produce inconclusive verdicts.
func (m *Monitor) Check(p domain.Packet) domain.AnomalySummary {
	var (
		verdicts []domain.QcVerdict
		measured []reading
	)

	switch pkt := p.(type) {
	case domain.ObservationPacket:
		verdicts, measured = m.checkObservation(pkt)
	case *domain.ObservationPacket:
		verdicts, measured = m.checkObservation(*pkt)
	case domain.CompositePacket:
		verdicts, measured = m.checkComposite(pkt)
	case *domain.CompositePacket:
		verdicts, measured = m.checkComposite(*pkt)
	default:
		verdicts = append(verdicts, domain.Inconclusive(unknownVariable(p.Kind()), qc.RuleUnsupportedType,
			fmt.Sprintf("Unsupported packet %T; no checks applied.", p)))
	}

	verdicts = append(verdicts, m.record(p.Station(), p.ObservedAt(), measured, verdicts)...)

	summary := domain.NewAnomalySummary(p.Station(), p.ObservedAt(), p.Kind(), verdicts)
	m.store.MarkFlagged(p.Station(), p.ObservedAt(), summary.FailingChecks()...)
	m.observe(summary)
	return summary
}

func (m *Monitor) checkObservation(p domain.ObservationPacket) ([]domain.QcVerdict, []reading) {
	v := p.Variable()
	if !v.Known() {
		return []domain.QcVerdict{domain.Inconclusive(unknownVariable(p.Type), qc.RuleUnsupportedType,
			fmt.Sprintf("Unknown sensor type %q; no checks applied.", p.Type))}, nil
	}
	if p.Value == nil {
		return []domain.QcVerdict{domain.Inconclusive(v, qc.RuleRequiredField,
			"Missing or non-numeric value; checks skipped.")}, nil
	}

	r := reading{variable: v, value: *p.Value}
	return m.checkReading(p.StationID, p.Timestamp, p.StationClass, r, p.Neighbors), []reading{r}
}

func (m *Monitor) checkComposite(p domain.CompositePacket) ([]domain.QcVerdict, []reading) {
	var (
		verdicts []domain.QcVerdict
		measured []reading
	)

	for _, v := range domain.Variables {
		if p.IsInvalid(v) {
			verdicts = append(verdicts, domain.Inconclusive(v, qc.RuleRequiredField,
				"Non-numeric value; checks skipped."))
			continue
		}
		value, ok := p.Value(v)
		if !ok {
			continue
		}
		r := reading{variable: v, value: value}
		// The composite neighbor snapshot only carries temperatures.
		var neighbors []domain.Neighbor
		if v == domain.Temperature {
			neighbors = p.Neighbors
		}
		verdicts = append(verdicts, m.checkReading(p.StationID, p.Timestamp, p.StationClass, r, neighbors)...)
		measured = append(measured, r)
	}

	if len(measured) == 0 && len(verdicts) == 0 {
		return []domain.QcVerdict{domain.Inconclusive(domain.CrossVariable, qc.RuleRequiredField,
			"Composite packet carries no readings.")}, nil
	}

	speed, hasSpeed := p.Value(domain.WindSpeed)
	direction, hasDirection := p.Value(domain.WindDirection)
	if hasSpeed && hasDirection {
		verdicts = append(verdicts, qc.CalmWind(speed, direction))
	}
	verdicts = append(verdicts, m.toolbox.CrossVariable(p)...)
	return verdicts, measured
}

// checkReading runs the single-variable checks configured for r.
func (m *Monitor) checkReading(station string, ts time.Time, class string, r reading, neighbors []domain.Neighbor) []domain.QcVerdict {
	var out []domain.QcVerdict
	if verdict, ok := m.toolbox.ExtremeValue(r.variable, r.value, class); ok {
		out = append(out, verdict)
	}
	switch r.variable {
	case domain.RadarSNR:
		return append(out, m.toolbox.RadarSNR(r.value))
	case domain.RadarReflectivityBias:
		return append(out, m.toolbox.ReflectivityBias(r.value))
	}
	if m.toolbox.HasStepLimit(r.variable) {
		out = append(out, m.stepCheck(station, ts, r))
	}
	if verdict, ok := m.toolbox.SpatialConsistency(r.variable, r.value, neighbors); ok {
		out = append(out, verdict)
	}
	return out
}

func (m *Monitor) stepCheck(station string, ts time.Time, r reading) domain.QcVerdict {
	if station == "" {
		return domain.Inconclusive(r.variable, qc.RuleTemporalStep, "Missing station_id; step check skipped.")
	}
	prior := m.store.Window(station, r.variable, history.Query{})
	verdict, _ := m.toolbox.TemporalStep(r.variable, domain.Sample{Timestamp: ts, Value: r.value}, prior)
	return verdict
}

// record appends measured values after all checks have run, so the step
// check only ever sees prior state. Values that broke a hard physical bound
// are kept out of history. Late values yield an out_of_order warning.
func (m *Monitor) record(station string, ts time.Time, measured []reading, verdicts []domain.QcVerdict) []domain.QcVerdict {
	if station == "" || ts.IsZero() {
		return nil
	}

	var out []domain.QcVerdict
	for _, r := range measured {
		if failedHardBound(verdicts, r.variable) {
			continue
		}
		res := m.store.Append(station, r.variable, ts, r.value)
		if res.Late {
			m.metrics.LateObservations.Inc()
			m.logger.Warn("late observation",
				"station_id", station,
				"variable", r.variable,
				"timestamp", ts,
			)
			out = append(out, domain.Fail(r.variable, qc.RuleOutOfOrder, domain.SeverityWarn,
				"Observation arrived after a newer reading; history order preserved."))
		}
	}
	return out
}

func failedHardBound(verdicts []domain.QcVerdict, v domain.Variable) bool {
	for _, verdict := range verdicts {
		if verdict.Variable == v && verdict.Rule == qc.RuleExtremeValue && verdict.Failed() {
			return true
		}
	}
	return false
}

func (m *Monitor) observe(s domain.AnomalySummary) {
	for _, v := range s.Verdicts {
		m.metrics.Verdicts.WithLabelValues(string(v.Variable), v.Rule, string(v.Status)).Inc()
	}
	if !s.Passed() {
		m.logger.Debug("anomalies detected",
			"station_id", s.StationID,
			"severity", s.Severity,
			"rules", s.FailingRules(),
		)
	}
}

func unknownVariable(kind string) domain.Variable {
	if kind == "" {
		return "unknown"
	}
	return domain.Variable(kind)
}
