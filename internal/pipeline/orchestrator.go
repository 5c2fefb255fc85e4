package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/station-qc/internal/diagnostics"
	"github.com/couchcryptid/station-qc/internal/domain"
	"github.com/couchcryptid/station-qc/internal/history"
	"github.com/couchcryptid/station-qc/internal/monitor"
	"github.com/couchcryptid/station-qc/internal/observability"
	"github.com/couchcryptid/station-qc/internal/qc"
	"github.com/couchcryptid/station-qc/internal/reporter"
)

// DefaultNeighborWindow bounds how far apart a neighbor's flagged reading
// may be to corroborate an anomaly.
const DefaultNeighborWindow = 30 * time.Minute

// Options configure an Orchestrator.
type Options struct {
	Thresholds     qc.Thresholds
	History        history.Config
	Diagnoser      diagnostics.Diagnoser // optional remote backend, nil for rule-based only
	DiagTimeout    time.Duration
	NeighborWindow time.Duration
}

// Orchestrator runs Monitor, Diagnostics, and Reporter for each packet. It
// owns the station history store for its whole lifetime; independent
// orchestrators never share state. Process is safe for concurrent use:
// packets for one station are checked one at a time.
type Orchestrator struct {
	store          *history.Store
	stationLocks   []sync.Mutex // striped by history.ShardIndex
	monitor        *monitor.Monitor
	diagnoser      diagnostics.Diagnoser
	neighborWindow time.Duration
	logger         *slog.Logger
	metrics        *observability.Metrics
}

// NewOrchestrator validates opts and creates the history store.
func NewOrchestrator(opts Options, logger *slog.Logger, metrics *observability.Metrics) (*Orchestrator, error) {
	toolbox, err := qc.NewToolbox(opts.Thresholds)
	if err != nil {
		return nil, err
	}
	store, err := history.New(opts.History)
	if err != nil {
		return nil, err
	}

	window := opts.NeighborWindow
	if window <= 0 {
		window = DefaultNeighborWindow
	}

	return &Orchestrator{
		store:          store,
		stationLocks:   make([]sync.Mutex, store.Config().Shards),
		monitor:        monitor.New(toolbox, store, logger, metrics),
		diagnoser:      diagnostics.NewResilient(opts.Diagnoser, opts.DiagTimeout, logger, metrics),
		neighborWindow: window,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Store exposes the history store for inspection.
func (o *Orchestrator) Store() *history.Store { return o.store }

// Process runs one packet to completion. It never fails: bad input and
// backend outages degrade the report rather than abort it.
func (o *Orchestrator) Process(ctx context.Context, p domain.Packet) domain.Report {
	summary := o.check(p)

	req := diagnostics.Request{
		Summary:   summary,
		Metadata:  p.Context(),
		Neighbors: diagnostics.NewNeighborContext(o.store, p, o.neighborWindow),
	}
	// The resilient diagnoser falls back instead of returning an error.
	diagnosis, _ := o.diagnoser.Diagnose(ctx, req)

	ticket := reporter.Build(summary, diagnosis)
	o.metrics.Tickets.WithLabelValues(string(ticket.RiskLevel)).Inc()
	o.logger.Debug("packet processed",
		"station_id", summary.StationID,
		"classification", diagnosis.Classification,
		"risk_level", ticket.RiskLevel,
	)

	return domain.Report{Summary: summary, Diagnosis: diagnosis, Ticket: ticket}
}

// check runs the monitor with the station's stripe held, so the history
// read by the step check and the append that follows are one step for
// that station. The lock is released before the remote diagnosis call.
func (o *Orchestrator) check(p domain.Packet) domain.AnomalySummary {
	mu := &o.stationLocks[history.ShardIndex(p.Station(), len(o.stationLocks))]
	mu.Lock()
	defer mu.Unlock()
	return o.monitor.Check(p)
}

// Decode parses a wire packet and processes it.
func (o *Orchestrator) Decode(ctx context.Context, data []byte) (domain.Report, error) {
	p, err := domain.DecodePacket(data)
	if err != nil {
		return domain.Report{}, fmt.Errorf("decode packet: %w", err)
	}
	return o.Process(ctx, p), nil
}

// Close drops all station history.
func (o *Orchestrator) Close() error {
	o.store.Reset()
	return nil
}
