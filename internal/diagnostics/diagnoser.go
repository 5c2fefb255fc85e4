// Package diagnostics classifies QC anomalies as device faults or genuine
// extreme weather.
package diagnostics

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/couchcryptid/station-qc/internal/domain"
)

// ErrBackendUnavailable is returned by a backend that cannot serve requests.
var ErrBackendUnavailable = errors.New("diagnosis backend unavailable")

// Diagnoser is the capability every diagnosis backend provides.
type Diagnoser interface {
	Diagnose(ctx context.Context, req Request) (domain.DiagnosisResult, error)
}

// Request is the input to one diagnosis.
type Request struct {
	Summary   domain.AnomalySummary `json:"summary"`
	Metadata  string                `json:"metadata,omitempty"`
	Neighbors NeighborContext       `json:"neighbors"`
}

// NeighborContext is what is known about the packet's neighbors: their
// snapshot readings and the checks (domain.CheckKey) each one failed
// recently. Flags come from live history, so with concurrent ingestion they
// depend on which neighbor packets have already been processed.
type NeighborContext struct {
	Readings []domain.Neighbor   `json:"readings,omitempty"`
	Flagged  map[string][]string `json:"flagged,omitempty"`
}

// Corroborating counts neighbors that recently failed the same rule on the
// same variable.
func (n NeighborContext) Corroborating(v domain.Variable, rule string) int {
	key := domain.CheckKey(v, rule)
	count := 0
	for _, checks := range n.Flagged {
		if slices.Contains(checks, key) {
			count++
		}
	}
	return count
}

// FlagSource reports the checks a station failed near a point in time.
type FlagSource interface {
	FlaggedChecks(station string, at time.Time, window time.Duration) []string
}

// NewNeighborContext collects flagged checks for every identified neighbor
// of p within window of its observation time.
func NewNeighborContext(src FlagSource, p domain.Packet, window time.Duration) NeighborContext {
	nc := NeighborContext{Readings: p.NeighborReadings()}
	for _, n := range nc.Readings {
		if n.ID == "" || n.ID == p.Station() {
			continue
		}
		if checks := src.FlaggedChecks(n.ID, p.ObservedAt(), window); len(checks) > 0 {
			if nc.Flagged == nil {
				nc.Flagged = make(map[string][]string)
			}
			nc.Flagged[n.ID] = checks
		}
	}
	return nc
}

// DiagnoserFunc adapts a function to the Diagnoser interface.
type DiagnoserFunc func(ctx context.Context, req Request) (domain.DiagnosisResult, error)

func (f DiagnoserFunc) Diagnose(ctx context.Context, req Request) (domain.DiagnosisResult, error) {
	return f(ctx, req)
}
