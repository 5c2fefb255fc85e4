package reporter

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/station-qc/internal/domain"
	"github.com/couchcryptid/station-qc/internal/qc"
	"github.com/google/uuid"
)

// ticketNamespace scopes the name-based ticket ids.
var ticketNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:station-qc:ticket"))

// Build produces the ticket for a diagnosed summary. It is a pure function
// of its inputs: identical inputs give identical tickets, ids included.
func Build(s domain.AnomalySummary, d domain.DiagnosisResult) domain.Ticket {
	risk := Risk(s.Severity, d)

	status := domain.TicketInvestigate
	if d.Classification == domain.ClassNominal {
		status = domain.TicketClose
	}

	return domain.Ticket{
		ID:             TicketID(s),
		StationID:      s.StationID,
		ObservedAt:     s.ObservedAt,
		RiskLevel:      risk,
		Classification: d.Classification,
		Confidence:     d.Confidence,
		Status:         status,
		Checklist:      Checklist(s, d, risk),
		SummaryText:    summaryText(s, d),
	}
}

// TicketID derives a stable id from the station, observation time, and
// verdict outcomes.
func TicketID(s domain.AnomalySummary) string {
	var b strings.Builder
	b.WriteString(s.StationID)
	b.WriteByte('|')
	if !s.ObservedAt.IsZero() {
		b.WriteString(s.ObservedAt.UTC().Format(time.RFC3339Nano))
	}
	for _, v := range s.Verdicts {
		fmt.Fprintf(&b, "|%s=%s", v.Key(), v.Status)
	}
	return uuid.NewSHA1(ticketNamespace, []byte(b.String())).String()
}

// Checklist selects catalog items for the failing rules in verdict order,
// then appends the items for the classification and tier. Duplicates are
// dropped.
func Checklist(s domain.AnomalySummary, d domain.DiagnosisResult, risk domain.RiskLevel) []string {
	var items []string
	add := func(item string) {
		if !slices.Contains(items, item) {
			items = append(items, item)
		}
	}

	switch d.Classification {
	case domain.ClassNominal:
		for _, v := range s.Anomalies() {
			if item, ok := itemFor(v); ok {
				add(item)
			}
		}
	case domain.ClassWeatherExtreme:
		add(itemCrossCheck)
		add(itemRecheckLater)
		if risk.Rank() >= domain.RiskMedium.Rank() {
			for _, v := range s.Anomalies() {
				if item, ok := itemFor(v); ok {
					add(item)
				}
			}
		}
	default:
		for _, v := range s.Verdicts {
			if v.Failed() || (v.Status == domain.StatusInconclusive && qc.EvidenceLoss(v.Rule)) {
				if item, ok := itemFor(v); ok {
					add(item)
				}
			}
		}
		if d.Classification == domain.ClassInconclusive {
			add(itemManualReview)
		}
	}

	switch risk {
	case domain.RiskCritical:
		add(itemDispatch)
	case domain.RiskHigh:
		add(itemSiteVisit)
	}
	if d.Fallback {
		add(itemBackendNotice)
	}
	if len(items) == 0 {
		items = append(items, defaultItem)
	}
	return items
}

func summaryText(s domain.AnomalySummary, d domain.DiagnosisResult) string {
	var b strings.Builder

	station := s.StationID
	if station == "" {
		station = "unknown station"
	}
	observed := "unknown time"
	if !s.ObservedAt.IsZero() {
		observed = s.ObservedAt.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(&b, "%s at %s", station, observed)

	anomalies := s.Anomalies()
	if len(anomalies) == 0 {
		b.WriteString(": all QC checks passed.")
	} else {
		parts := make([]string, 0, len(anomalies))
		for _, v := range anomalies {
			parts = append(parts, fmt.Sprintf("%s (%s)", v.Key(), v.Severity))
		}
		fmt.Fprintf(&b, ": %d anomal%s: %s.", len(anomalies), plural(len(anomalies)), strings.Join(parts, ", "))
	}
	if n := len(s.Inconclusive()); n > 0 {
		fmt.Fprintf(&b, " %d check(s) inconclusive.", n)
	}

	fmt.Fprintf(&b, " Diagnosis: %s (confidence %.2f). %s", d.Classification, d.Confidence, d.Rationale)
	// One line, so the Markdown rendering parses back unchanged.
	return strings.Join(strings.Fields(b.String()), " ")
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
