package csvstream

import (
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/couchcryptid/station-qc/internal/domain"
)

// Writer emits composite packets in the canonical column order.
type Writer struct {
	csv         *csv.Writer
	wroteHeader bool
}

// NewWriter creates a Writer. The header is written with the first row.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// Write appends one packet as a row.
func (w *Writer) Write(p domain.CompositePacket) error {
	if !w.wroteHeader {
		if err := w.csv.Write(Header()); err != nil {
			return err
		}
		w.wroteHeader = true
	}

	row := make([]string, 0, len(domain.Variables)+4)
	ts := ""
	if !p.Timestamp.IsZero() {
		ts = p.Timestamp.UTC().Format(time.RFC3339)
	}
	row = append(row, ts, p.StationID)
	for _, v := range domain.Variables {
		cell := ""
		if value, ok := p.Value(v); ok {
			cell = formatFloat(value)
		} else if p.IsInvalid(v) {
			cell = "ERR"
		}
		row = append(row, cell)
	}

	neighbors := make([]string, 0, len(p.Neighbors))
	for _, n := range p.Neighbors {
		if n.Value != nil {
			neighbors = append(neighbors, formatFloat(*n.Value))
		}
	}
	row = append(row, strings.Join(neighbors, ";"), p.Metadata)
	return w.csv.Write(row)
}

// Flush writes buffered rows and reports any write error.
func (w *Writer) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}
