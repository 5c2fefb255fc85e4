// Package csvstream reads and writes composite observation streams in the
// station CSV schema.
package csvstream

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/station-qc/internal/domain"
)

// Column names beyond the per-variable columns.
const (
	ColTimestamp    = "timestamp"
	ColStationID    = "station_id"
	ColNeighbors    = "neighbor_temp_values"
	ColMetadata     = "metadata"
	ColStationClass = "station_class"
)

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// Header is the canonical column order.
func Header() []string {
	cols := []string{ColTimestamp, ColStationID}
	for _, v := range domain.Variables {
		cols = append(cols, string(v))
	}
	return append(cols, ColNeighbors, ColMetadata)
}

// Reader yields one composite packet per CSV row. It implements the
// pipeline packet source.
type Reader struct {
	csv     *csv.Reader
	columns map[string]int
	line    int
	skipped int
	logger  *slog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger used to report skipped rows.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

// NewReader reads the header row. Column order is free; station_id and
// timestamp are required, every other column is optional. Quotes inside
// unquoted cells are kept as text.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		columns[name] = i
	}
	for _, required := range []string{ColTimestamp, ColStationID} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}
	reader := &Reader{csv: cr, columns: columns, line: 1, logger: slog.Default()}
	for _, opt := range opts {
		opt(reader)
	}
	return reader, nil
}

// Next returns the next row as a packet, or io.EOF after the last row.
// Malformed cells never fail the row; they surface as missing or invalid
// readings. Rows the CSV syntax cannot split are skipped and counted.
func (r *Reader) Next(ctx context.Context) (domain.Packet, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.csv.Read()
		r.line++
		var parseErr *csv.ParseError
		switch {
		case err == nil:
			return r.parse(record), nil
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		case errors.As(err, &parseErr):
			r.skipped++
			r.logger.Warn("skipping unreadable csv row", "line", parseErr.StartLine, "error", err)
		default:
			return nil, fmt.Errorf("read csv line %d: %w", r.line, err)
		}
	}
}

// Skipped reports how many rows were dropped as unreadable.
func (r *Reader) Skipped() int { return r.skipped }

func (r *Reader) cell(record []string, name string) string {
	i, ok := r.columns[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (r *Reader) parse(record []string) domain.CompositePacket {
	p := domain.CompositePacket{
		StationID:    r.cell(record, ColStationID),
		Values:       make(map[domain.Variable]float64),
		Metadata:     r.cell(record, ColMetadata),
		StationClass: r.cell(record, ColStationClass),
	}
	p.Timestamp, _ = domain.ParseTimestamp(r.cell(record, ColTimestamp))

	for _, v := range domain.Variables {
		value, present, valid := domain.ParseReading(r.cell(record, string(v)))
		switch {
		case !valid:
			p.Invalid = append(p.Invalid, v)
		case present:
			p.Values[v] = value
		}
	}
	for _, t := range domain.ParseNeighborList(r.cell(record, ColNeighbors)) {
		p.Neighbors = append(p.Neighbors, domain.Neighbor{Value: domain.Float(t)})
	}
	return p
}

// ReadAll loads every packet from r.
func ReadAll(ctx context.Context, r io.Reader) ([]domain.Packet, error) {
	cr, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	var out []domain.Packet
	for {
		p, err := cr.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
}

// LoadFile loads every packet from the CSV file at path.
func LoadFile(ctx context.Context, path string) ([]domain.Packet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadAll(ctx, f)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
