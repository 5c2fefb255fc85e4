package domain

import "time"

// Ticket statuses mirror the work order lifecycle.
const (
	TicketInvestigate = "INVESTIGATE"
	TicketClose       = "CLOSE"
)

// Ticket is a standardized maintenance work order.
type Ticket struct {
	ID             string         `json:"id"`
	StationID      string         `json:"station_id"`
	ObservedAt     time.Time      `json:"observed_at"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	Classification Classification `json:"classification"`
	Confidence     float64        `json:"confidence"`
	Status         string         `json:"status"`
	Checklist      []string       `json:"checklist"`
	SummaryText    string         `json:"summary_text"`
}

// Report bundles everything the pipeline produced for one packet.
type Report struct {
	Summary   AnomalySummary  `json:"summary"`
	Diagnosis DiagnosisResult `json:"diagnosis"`
	Ticket    Ticket          `json:"ticket"`
}
