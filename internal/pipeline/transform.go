package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/station-qc/internal/domain"
)

// PacketTransformer implements Transformer by running each decoded packet
// through the orchestrator and serializing the resulting report.
type PacketTransformer struct {
	orch *Orchestrator
}

// NewTransformer creates a PacketTransformer over orch.
func NewTransformer(orch *Orchestrator) *PacketTransformer {
	return &PacketTransformer{orch: orch}
}

func (t *PacketTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	report, err := t.orch.Decode(ctx, raw.Value)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	return SerializeReport(report)
}

// SerializeReport encodes a report for the sink, keyed by station so a
// partitioned sink keeps each station's tickets in order.
func SerializeReport(r domain.Report) (domain.OutputEvent, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("serialize report: %w", err)
	}
	return domain.OutputEvent{
		Key:   []byte(r.Ticket.StationID),
		Value: data,
		Headers: map[string]string{
			"ticket_id":    r.Ticket.ID,
			"station_id":   r.Ticket.StationID,
			"risk_level":   string(r.Ticket.RiskLevel),
			"status":       r.Ticket.Status,
			"processed_at": domain.Now().Format(time.RFC3339),
		},
	}, nil
}
