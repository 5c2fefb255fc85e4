package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/station-qc/internal/domain"
	"github.com/couchcryptid/station-qc/internal/observability"
)

// Fallback reasons, used as the metric label.
const (
	ReasonError    = "error"
	ReasonTimeout  = "timeout"
	ReasonCanceled = "canceled"
	ReasonInvalid  = "invalid"
)

// ErrNominalWithFailures rejects a backend that calls a packet nominal while
// it still fails checks that describe the measurement.
var ErrNominalWithFailures = errors.New("nominal classification with failing checks")

// Resilient calls an optional primary backend under a deadline and falls
// back to the rule-based classifier whenever the primary is absent, fails,
// times out, or returns an unusable result. Diagnose never returns an error.
type Resilient struct {
	primary  Diagnoser
	fallback *RuleBased
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewResilient wraps primary. A nil primary makes every call rule-based.
func NewResilient(primary Diagnoser, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Resilient {
	return &Resilient{
		primary:  primary,
		fallback: NewRuleBased(),
		timeout:  timeout,
		logger:   logger,
		metrics:  metrics,
	}
}

type outcome struct {
	res domain.DiagnosisResult
	err error
}

func (r *Resilient) Diagnose(ctx context.Context, req Request) (domain.DiagnosisResult, error) {
	if r.primary == nil {
		return r.fallback.Classify(req), nil
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() {
		res, err := r.primary.Diagnose(callCtx, req)
		done <- outcome{res, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		out.err = callCtx.Err()
	}

	if out.err == nil {
		if err := out.res.Validate(); err != nil {
			return r.degrade(req, ReasonInvalid, err), nil
		}
		if out.res.Classification == domain.ClassNominal && len(diagnosticFailures(req.Summary)) > 0 {
			return r.degrade(req, ReasonInvalid, ErrNominalWithFailures), nil
		}
		if out.res.Backend == "" {
			out.res.Backend = domain.BackendRemote
		}
		return out.res, nil
	}

	reason := ReasonError
	switch {
	case errors.Is(out.err, context.DeadlineExceeded):
		reason = ReasonTimeout
	case errors.Is(out.err, context.Canceled):
		reason = ReasonCanceled
	}
	return r.degrade(req, reason, out.err), nil
}

func (r *Resilient) degrade(req Request, reason string, cause error) domain.DiagnosisResult {
	r.metrics.DiagnosisFallbacks.WithLabelValues(reason).Inc()
	r.logger.Warn("diagnosis backend failed, using rule-based fallback",
		"reason", reason,
		"error", cause,
		"station_id", req.Summary.StationID,
	)

	res := r.fallback.Classify(req)
	res.Fallback = true
	res.Rationale = fmt.Sprintf("Warning: remote diagnosis unavailable (%s); rule-based fallback used. %s", reason, res.Rationale)
	return res
}
