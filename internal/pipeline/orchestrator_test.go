package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/station-qc/internal/diagnostics"
	"github.com/couchcryptid/station-qc/internal/domain"
	"github.com/couchcryptid/station-qc/internal/history"
	"github.com/couchcryptid/station-qc/internal/pipeline"
	"github.com/couchcryptid/station-qc/internal/qc"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 12, 1, 14, 0, 0, 0, time.UTC)

func newTestOrchestrator(t *testing.T, remote diagnostics.Diagnoser) *pipeline.Orchestrator {
	t.Helper()
	orch, err := pipeline.NewOrchestrator(pipeline.Options{
		Thresholds:  qc.DefaultThresholds(),
		History:     history.Config{MaxEntries: 60, MaxAge: 6 * time.Hour, Shards: 4},
		Diagnoser:   remote,
		DiagTimeout: 50 * time.Millisecond,
	}, slog.Default(), newTestMetrics())
	require.NoError(t, err)
	t.Cleanup(func() { _ = orch.Close() })
	return orch
}

func temperature(station string, value float64, at time.Time, neighbors ...float64) domain.Packet {
	ns := make([]domain.Neighbor, 0, len(neighbors))
	for _, n := range neighbors {
		ns = append(ns, domain.Neighbor{Value: domain.Float(n)})
	}
	return domain.NewObservation(domain.Temperature, station, value, at, ns...)
}

func stationSeries(station string, start float64, n int) []domain.Packet {
	out := make([]domain.Packet, n)
	for i := range out {
		out[i] = temperature(station, start+0.1*float64(i), t0.Add(time.Duration(i)*time.Minute))
	}
	return out
}

func TestNewOrchestrator_InvalidConfig(t *testing.T) {
	_, err := pipeline.NewOrchestrator(pipeline.Options{
		Thresholds: qc.DefaultThresholds(),
		History:    history.Config{MaxEntries: -1},
	}, slog.Default(), newTestMetrics())
	require.ErrorIs(t, err, history.ErrInvalidConfig)

	bad := qc.DefaultThresholds()
	bad.Ranges[domain.Temperature] = qc.Range{Min: 10, Max: -10}
	_, err = pipeline.NewOrchestrator(pipeline.Options{
		Thresholds: bad,
		History:    history.Config{MaxEntries: 10},
	}, slog.Default(), newTestMetrics())
	require.Error(t, err)
}

func TestProcess_SpikeAfterNominal(t *testing.T) {
	orch := newTestOrchestrator(t, nil)
	ctx := context.Background()

	first := orch.Process(ctx, temperature("S1", 20, t0, 20.1, 19.9))
	assert.Equal(t, domain.ClassNominal, first.Diagnosis.Classification)
	assert.Equal(t, domain.RiskLow, first.Ticket.RiskLevel)
	assert.Equal(t, domain.TicketClose, first.Ticket.Status)

	spike := orch.Process(ctx, temperature("S1", 45, t0.Add(time.Minute), 20.1, 19.9))
	step, ok := spike.Summary.Verdict(domain.Temperature, qc.RuleTemporalStep)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFail, step.Status)
	assert.Equal(t, domain.SeverityCritical, step.Severity)
	assert.Equal(t, domain.ClassDeviceFault, spike.Diagnosis.Classification)
	assert.Equal(t, domain.RiskCritical, spike.Ticket.RiskLevel)
	assert.Equal(t, domain.TicketInvestigate, spike.Ticket.Status)
	assert.Equal(t, 2, orch.Store().Len("S1", domain.Temperature))
}

func TestProcess_IdenticalInputsYieldIdenticalTickets(t *testing.T) {
	ctx := context.Background()
	packets := append(stationSeries("S1", 20, 5), temperature("S1", 40, t0.Add(5*time.Minute), 20.4, 20.6))

	run := func() []domain.Ticket {
		orch := newTestOrchestrator(t, nil)
		var out []domain.Ticket
		for _, p := range packets {
			out = append(out, orch.Process(ctx, p).Ticket)
		}
		return out
	}

	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Fatalf("replay mismatch (-first +second):\n%s", diff)
	}
}

func TestProcess_OrchestratorsDoNotShareHistory(t *testing.T) {
	ctx := context.Background()
	a := newTestOrchestrator(t, nil)
	b := newTestOrchestrator(t, nil)

	a.Process(ctx, temperature("S1", 20, t0))
	assert.Equal(t, 1, a.Store().Len("S1", domain.Temperature))
	assert.Zero(t, b.Store().Len("S1", domain.Temperature))

	// The same spike is a step failure only where history exists.
	ra := a.Process(ctx, temperature("S1", 45, t0.Add(time.Minute)))
	rb := b.Process(ctx, temperature("S1", 45, t0.Add(time.Minute)))
	va, _ := ra.Summary.Verdict(domain.Temperature, qc.RuleTemporalStep)
	vb, _ := rb.Summary.Verdict(domain.Temperature, qc.RuleTemporalStep)
	assert.Equal(t, domain.StatusFail, va.Status)
	assert.Equal(t, domain.StatusPass, vb.Status)
}

func TestProcess_RemoteBackendFailureFallsBack(t *testing.T) {
	remote := diagnostics.DiagnoserFunc(func(context.Context, diagnostics.Request) (domain.DiagnosisResult, error) {
		return domain.DiagnosisResult{}, diagnostics.ErrBackendUnavailable
	})
	orch := newTestOrchestrator(t, remote)

	r := orch.Process(context.Background(), temperature("S1", 80, t0))

	assert.True(t, r.Diagnosis.Fallback)
	assert.Equal(t, domain.BackendRuleBased, r.Diagnosis.Backend)
	assert.Equal(t, domain.ClassDeviceFault, r.Diagnosis.Classification)
	assert.True(t, strings.HasPrefix(r.Diagnosis.Rationale, "Warning: remote diagnosis unavailable"))
	assert.Equal(t, domain.RiskCritical, r.Ticket.RiskLevel)
}

func TestProcess_RemoteNominalCannotCloseFailure(t *testing.T) {
	remote := diagnostics.DiagnoserFunc(func(context.Context, diagnostics.Request) (domain.DiagnosisResult, error) {
		return domain.DiagnosisResult{Classification: domain.ClassNominal, Confidence: 1, Rationale: "Looks fine."}, nil
	})
	orch := newTestOrchestrator(t, remote)

	r := orch.Process(context.Background(), temperature("S1", 80, t0))

	assert.Equal(t, domain.SeverityCritical, r.Summary.Severity)
	assert.True(t, r.Diagnosis.Fallback)
	assert.Equal(t, domain.ClassDeviceFault, r.Diagnosis.Classification)
	assert.Contains(t, r.Diagnosis.Rationale, "("+diagnostics.ReasonInvalid+")")
	assert.Equal(t, domain.RiskCritical, r.Ticket.RiskLevel)
	assert.Equal(t, domain.TicketInvestigate, r.Ticket.Status)
}

func TestDecode_ConcurrentPacketsForOneStation(t *testing.T) {
	packets := [][]byte{
		[]byte(`{"type":"temperature","station_id":"S1","value":20,"timestamp":"2025-12-01T14:00:00Z"}`),
		[]byte(`{"type":"temperature","station_id":"S1","value":45,"timestamp":"2025-12-01T14:01:00Z"}`),
	}

	for i := range 50 {
		orch := newTestOrchestrator(t, nil)
		reports := make([]domain.Report, len(packets))
		start := make(chan struct{})
		var wg sync.WaitGroup
		for j, data := range packets {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				r, err := orch.Decode(context.Background(), data)
				assert.NoError(t, err)
				reports[j] = r
			}()
		}
		close(start)
		wg.Wait()

		// Whichever packet is checked second sees the first: either the
		// jump fails the step check or the earlier reading arrives late.
		flagged := 0
		for _, r := range reports {
			for _, rule := range r.Summary.FailingRules() {
				if rule == qc.RuleTemporalStep || rule == qc.RuleOutOfOrder {
					flagged++
				}
			}
		}
		assert.Equal(t, 1, flagged, "iteration %d", i)
		assert.Equal(t, 2, orch.Store().Len("S1", domain.Temperature))
	}
}

func TestProcess_NeighborCorroborationIsPerVariable(t *testing.T) {
	ctx := context.Background()
	orch := newTestOrchestrator(t, nil)
	neighbors := func(ids ...string) []domain.Neighbor {
		out := make([]domain.Neighbor, 0, len(ids))
		for _, id := range ids {
			out = append(out, domain.Neighbor{ID: id, Value: domain.Float(10)})
		}
		return out
	}

	isolated := orch.Process(ctx, domain.NewObservation(domain.Temperature, "S1", 29, t0, neighbors("S2", "X")...))
	assert.Equal(t, domain.ClassDeviceFault, isolated.Diagnosis.Classification)

	// S2's pressure outlier says nothing about S3's temperature.
	orch.Process(ctx, domain.NewObservation(domain.Pressure, "S2", 1040, t0, domain.Neighbor{Value: domain.Float(1000)}, domain.Neighbor{Value: domain.Float(1001)}))
	r := orch.Process(ctx, domain.NewObservation(domain.Temperature, "S3", 29, t0, neighbors("S2", "X")...))
	assert.Equal(t, isolated.Diagnosis, r.Diagnosis)

	// S1 failed the same temperature check and corroborates S4.
	r = orch.Process(ctx, domain.NewObservation(domain.Temperature, "S4", 29, t0, neighbors("S1", "X")...))
	assert.Equal(t, domain.ClassInconclusive, r.Diagnosis.Classification)
	assert.Contains(t, r.Diagnosis.Rationale, "1 neighbor station(s)")
}

func TestProcess_SlowBackendTimesOut(t *testing.T) {
	remote := diagnostics.DiagnoserFunc(func(ctx context.Context, _ diagnostics.Request) (domain.DiagnosisResult, error) {
		<-ctx.Done()
		return domain.DiagnosisResult{}, ctx.Err()
	})
	orch := newTestOrchestrator(t, remote)

	start := time.Now()
	r := orch.Process(context.Background(), temperature("S1", 20, t0))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, r.Diagnosis.Fallback)
	assert.Equal(t, domain.ClassNominal, r.Diagnosis.Classification)
}

func TestProcess_RemoteBackendUsedWhenHealthy(t *testing.T) {
	remote := diagnostics.DiagnoserFunc(func(context.Context, diagnostics.Request) (domain.DiagnosisResult, error) {
		return domain.DiagnosisResult{
			Classification: domain.ClassWeatherExtreme,
			Confidence:     0.9,
			Rationale:      "Frontal passage.",
		}, nil
	})
	orch := newTestOrchestrator(t, remote)

	r := orch.Process(context.Background(), temperature("S1", 45, t0, 20, 20.2))

	assert.False(t, r.Diagnosis.Fallback)
	assert.Equal(t, domain.BackendRemote, r.Diagnosis.Backend)
	assert.Equal(t, domain.ClassWeatherExtreme, r.Diagnosis.Classification)
	assert.Equal(t, domain.RiskLow, r.Ticket.RiskLevel)
}

func TestProcess_MissingFieldsNeverFail(t *testing.T) {
	orch := newTestOrchestrator(t, nil)

	r := orch.Process(context.Background(), domain.ObservationPacket{Type: "temperature", StationID: "S1"})

	v, ok := r.Summary.Verdict(domain.Temperature, qc.RuleRequiredField)
	require.True(t, ok)
	assert.Equal(t, domain.StatusInconclusive, v.Status)
	assert.Equal(t, domain.ClassInconclusive, r.Diagnosis.Classification)
	assert.NotEmpty(t, r.Ticket.ID)
	assert.NotEmpty(t, r.Ticket.Checklist)
}

func TestDecode(t *testing.T) {
	orch := newTestOrchestrator(t, nil)

	r, err := orch.Decode(context.Background(),
		[]byte(`{"type":"radar","snr":8.5,"reflectivity_bias":3.5,"timestamp":"2025-12-01T14:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityCritical, r.Summary.Severity)
	assert.Equal(t, domain.ClassDeviceFault, r.Diagnosis.Classification)

	_, err = orch.Decode(context.Background(), []byte(`"just a string"`))
	require.Error(t, err)
}

func TestClose_DropsHistory(t *testing.T) {
	orch := newTestOrchestrator(t, nil)
	orch.Process(context.Background(), temperature("S1", 20, t0))
	require.NoError(t, orch.Close())
	assert.Empty(t, orch.Store().Stations())
}

func TestRunStream_PreservesOrder(t *testing.T) {
	orch := newTestOrchestrator(t, nil)
	packets := stationSeries("S1", 20, 6)
	sink := &pipeline.CollectSink{}

	n, err := orch.RunStream(context.Background(), pipeline.NewSliceSource(packets...), sink)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	reports := sink.Reports()
	require.Len(t, reports, 6)
	for i, r := range reports {
		assert.Equal(t, packets[i].ObservedAt(), r.Ticket.ObservedAt)
	}
}

type failingSink struct{}

func (failingSink) Write(context.Context, domain.Report) error { return errors.New("disk full") }

func TestRunStream_SinkError(t *testing.T) {
	orch := newTestOrchestrator(t, nil)
	n, err := orch.RunStream(context.Background(), pipeline.NewSliceSource(stationSeries("S1", 20, 3)...), failingSink{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, n)
}

type errSource struct{}

func (errSource) Next(context.Context) (domain.Packet, error) { return nil, io.ErrUnexpectedEOF }

func TestRunStream_SourceError(t *testing.T) {
	orch := newTestOrchestrator(t, nil)
	_, err := orch.RunStream(context.Background(), errSource{}, &pipeline.CollectSink{})
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRunStream_Cancelled(t *testing.T) {
	orch := newTestOrchestrator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orch.RunStream(ctx, pipeline.NewSliceSource(stationSeries("S1", 20, 3)...), &pipeline.CollectSink{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunSharded_PerStationOrder(t *testing.T) {
	orch := newTestOrchestrator(t, nil)

	var packets []domain.Packet
	series := map[string][]domain.Packet{}
	for _, s := range []string{"S1", "S2", "S3", "S4", "S5"} {
		series[s] = stationSeries(s, 15, 8)
	}
	// Interleave stations minute by minute.
	for i := 0; i < 8; i++ {
		for _, s := range []string{"S1", "S2", "S3", "S4", "S5"} {
			packets = append(packets, series[s][i])
		}
	}

	sink := &pipeline.CollectSink{}
	n, err := orch.RunSharded(context.Background(), pipeline.NewSliceSource(packets...), sink, 3)
	require.NoError(t, err)
	assert.Equal(t, len(packets), n)

	last := map[string]time.Time{}
	for _, r := range sink.Reports() {
		prev, seen := last[r.Ticket.StationID]
		if seen {
			assert.True(t, r.Ticket.ObservedAt.After(prev), "station %s out of order", r.Ticket.StationID)
		}
		last[r.Ticket.StationID] = r.Ticket.ObservedAt
		assert.Equal(t, domain.ClassNominal, r.Diagnosis.Classification)
	}
	assert.Len(t, last, 5)
	for s := range series {
		assert.Equal(t, 8, orch.Store().Len(s, domain.Temperature))
	}
}

func TestRunSharded_MatchesSequential(t *testing.T) {
	var packets []domain.Packet
	for _, s := range []string{"S1", "S2", "S3"} {
		packets = append(packets, stationSeries(s, 18, 4)...)
	}
	packets = append(packets, temperature("S2", 60, t0.Add(10*time.Minute)))

	byTicket := func(reports []domain.Report) map[string]domain.RiskLevel {
		out := map[string]domain.RiskLevel{}
		for _, r := range reports {
			out[r.Ticket.ID] = r.Ticket.RiskLevel
		}
		return out
	}

	seqSink := &pipeline.CollectSink{}
	_, err := newTestOrchestrator(t, nil).RunStream(context.Background(), pipeline.NewSliceSource(packets...), seqSink)
	require.NoError(t, err)

	shardSink := &pipeline.CollectSink{}
	_, err = newTestOrchestrator(t, nil).RunSharded(context.Background(), pipeline.NewSliceSource(packets...), shardSink, 4)
	require.NoError(t, err)

	assert.Equal(t, byTicket(seqSink.Reports()), byTicket(shardSink.Reports()))
}

func TestRunSharded_NeighborIDs(t *testing.T) {
	stations := []string{"S1", "S2", "S3"}
	var packets []domain.Packet
	for i := range 4 {
		at := t0.Add(time.Duration(i) * time.Minute)
		for j, s := range stations {
			var ns []domain.Neighbor
			for _, other := range stations {
				if other != s {
					ns = append(ns, domain.Neighbor{ID: other, Value: domain.Float(18 + 0.1*float64(i))})
				}
			}
			packets = append(packets, domain.NewObservation(domain.Temperature, s, 18+0.1*float64(i)+0.05*float64(j), at, ns...))
		}
	}
	spike := domain.NewObservation(domain.Temperature, "S2", 60, t0.Add(10*time.Minute),
		domain.Neighbor{ID: "S1", Value: domain.Float(18.3)}, domain.Neighbor{ID: "S3", Value: domain.Float(18.4)})
	packets = append(packets, spike)

	byTicket := func(reports []domain.Report) map[string]domain.DiagnosisResult {
		out := map[string]domain.DiagnosisResult{}
		for _, r := range reports {
			out[r.Ticket.ID] = r.Diagnosis
		}
		return out
	}

	seqSink := &pipeline.CollectSink{}
	_, err := newTestOrchestrator(t, nil).RunStream(context.Background(), pipeline.NewSliceSource(packets...), seqSink)
	require.NoError(t, err)
	shardSink := &pipeline.CollectSink{}
	_, err = newTestOrchestrator(t, nil).RunSharded(context.Background(), pipeline.NewSliceSource(packets...), shardSink, 3)
	require.NoError(t, err)

	// Neighbors that never fail contribute no flags, so worker timing
	// cannot change a diagnosis.
	want := byTicket(seqSink.Reports())
	assert.Len(t, want, len(packets))
	assert.Equal(t, want, byTicket(shardSink.Reports()))
}
