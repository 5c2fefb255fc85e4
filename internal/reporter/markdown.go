package reporter

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/station-qc/internal/domain"
)

// ErrMalformedTicket is returned by ParseMarkdown for text that is not a
// rendered ticket.
var ErrMalformedTicket = errors.New("malformed ticket markdown")

var (
	headingRe   = regexp.MustCompile(`^# \[([A-Z]+)\] Maintenance ticket (\S+)$`)
	fieldRe     = regexp.MustCompile(`^- ([A-Za-z]+): (.*)$`)
	itemRe      = regexp.MustCompile(`^\d+\. (.+)$`)
	classConfRe = regexp.MustCompile(`^(\S+) \(confidence ([0-9.]+)\)$`)
)

// RenderMarkdown renders t with a risk-level heading and an ordered checklist.
func RenderMarkdown(t domain.Ticket) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# [%s] Maintenance ticket %s\n\n", strings.ToUpper(string(t.RiskLevel)), t.ID)
	fmt.Fprintf(&b, "- Station: %s\n", t.StationID)
	if !t.ObservedAt.IsZero() {
		fmt.Fprintf(&b, "- Observed: %s\n", t.ObservedAt.UTC().Format(time.RFC3339Nano))
	}
	fmt.Fprintf(&b, "- Status: %s\n", t.Status)
	fmt.Fprintf(&b, "- Classification: %s (confidence %.2f)\n", t.Classification, t.Confidence)

	b.WriteString("\n## Summary\n\n")
	b.WriteString(t.SummaryText)
	b.WriteString("\n\n## Checklist\n\n")
	for i, item := range t.Checklist {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return b.String()
}

// ParseMarkdown reads a ticket back from RenderMarkdown output. Confidence
// comes back rounded to two decimals.
func ParseMarkdown(md string) (domain.Ticket, error) {
	var (
		t       domain.Ticket
		section string
		summary []string
		heading bool
	)

	sc := bufio.NewScanner(strings.NewReader(md))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")

		if m := headingRe.FindStringSubmatch(line); m != nil {
			risk, ok := domain.ParseRiskLevel(m[1])
			if !ok {
				return domain.Ticket{}, fmt.Errorf("%w: unknown risk level %q", ErrMalformedTicket, m[1])
			}
			t.RiskLevel, t.ID, heading = risk, m[2], true
			continue
		}
		if strings.HasPrefix(line, "## ") {
			section = strings.TrimSpace(strings.TrimPrefix(line, "## "))
			continue
		}
		if line == "" {
			continue
		}

		switch section {
		case "":
			if err := parseField(&t, line); err != nil {
				return domain.Ticket{}, err
			}
		case "Summary":
			summary = append(summary, line)
		case "Checklist":
			if m := itemRe.FindStringSubmatch(line); m != nil {
				t.Checklist = append(t.Checklist, m[1])
			}
		}
	}
	if err := sc.Err(); err != nil {
		return domain.Ticket{}, fmt.Errorf("read ticket: %w", err)
	}
	if !heading {
		return domain.Ticket{}, fmt.Errorf("%w: missing risk heading", ErrMalformedTicket)
	}

	t.SummaryText = strings.Join(summary, " ")
	return t, nil
}

func parseField(t *domain.Ticket, line string) error {
	m := fieldRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	key, value := m[1], m[2]

	switch key {
	case "Station":
		t.StationID = value
	case "Observed":
		ts, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return fmt.Errorf("%w: observed time: %w", ErrMalformedTicket, err)
		}
		t.ObservedAt = ts
	case "Status":
		t.Status = value
	case "Classification":
		cm := classConfRe.FindStringSubmatch(value)
		if cm == nil {
			return fmt.Errorf("%w: classification %q", ErrMalformedTicket, value)
		}
		conf, err := strconv.ParseFloat(cm[2], 64)
		if err != nil {
			return fmt.Errorf("%w: confidence: %w", ErrMalformedTicket, err)
		}
		t.Classification = domain.Classification(cm[1])
		t.Confidence = conf
	}
	return nil
}
