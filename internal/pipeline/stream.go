package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/couchcryptid/station-qc/internal/domain"
	"github.com/couchcryptid/station-qc/internal/history"
	"golang.org/x/sync/errgroup"
)

// PacketSource yields packets in arrival order. Next returns io.EOF when a
// bounded source is exhausted.
type PacketSource interface {
	Next(ctx context.Context) (domain.Packet, error)
}

// ReportSink receives finished reports.
type ReportSink interface {
	Write(ctx context.Context, r domain.Report) error
}

// SliceSource serves a fixed list of packets.
type SliceSource struct {
	packets []domain.Packet
	next    int
}

// NewSliceSource creates a bounded source over packets.
func NewSliceSource(packets ...domain.Packet) *SliceSource {
	return &SliceSource{packets: packets}
}

func (s *SliceSource) Next(_ context.Context) (domain.Packet, error) {
	if s.next >= len(s.packets) {
		return nil, io.EOF
	}
	p := s.packets[s.next]
	s.next++
	return p, nil
}

// CollectSink keeps every report in memory. It is safe for concurrent use.
type CollectSink struct {
	mu      sync.Mutex
	reports []domain.Report
}

func (c *CollectSink) Write(_ context.Context, r domain.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
	return nil
}

// Reports returns a copy of the collected reports in write order.
func (c *CollectSink) Reports() []domain.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Report(nil), c.reports...)
}

// RunStream processes packets one at a time in the order received until
// the source is exhausted or ctx is cancelled. It returns the number of
// reports written.
func (o *Orchestrator) RunStream(ctx context.Context, src PacketSource, sink ReportSink) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		p, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("read packet: %w", err)
		}
		if err := sink.Write(ctx, o.Process(ctx, p)); err != nil {
			return n, fmt.Errorf("write report: %w", err)
		}
		n++
	}
}

// RunSharded is RunStream with stations spread over workers. Every packet
// for one station goes to the same worker, so per-station order holds while
// different stations run in parallel. Sink writes are serialized.
//
// QC verdicts match RunStream exactly. Neighbor corroboration reads flags
// other workers may or may not have written yet, so a diagnosis that
// depends on a failing identified neighbor can differ from RunStream.
func (o *Orchestrator) RunSharded(ctx context.Context, src PacketSource, sink ReportSink, workers int) (int, error) {
	if workers <= 1 {
		return o.RunStream(ctx, src, sink)
	}

	g, gctx := errgroup.WithContext(ctx)
	queues := make([]chan domain.Packet, workers)
	for i := range queues {
		queues[i] = make(chan domain.Packet, 16)
	}

	var (
		mu sync.Mutex
		n  int
	)
	for i := range queues {
		queue := queues[i]
		g.Go(func() error {
			for p := range queue {
				report := o.Process(gctx, p)
				mu.Lock()
				err := sink.Write(gctx, report)
				if err == nil {
					n++
				}
				mu.Unlock()
				if err != nil {
					return fmt.Errorf("write report: %w", err)
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		for {
			p, err := src.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read packet: %w", err)
			}
			select {
			case queues[history.ShardIndex(p.Station(), workers)] <- p:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	err := g.Wait()
	mu.Lock()
	defer mu.Unlock()
	return n, err
}
