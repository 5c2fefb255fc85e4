package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrNotObject is returned when a payload is not a JSON object.
var ErrNotObject = errors.New("packet is not a JSON object")

// timestampLayouts are tried in order. Zone-less forms are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// ParseTimestamp parses an ISO-8601 timestamp. It returns false for empty or
// unrecognized input.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseReading parses a numeric field. Empty and "NaN" strings are absent;
// anything else that is not a finite number is invalid.
func ParseReading(s string) (value float64, present, valid bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return 0, false, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, true, false
	}
	return v, true, true
}

// ParseNeighborList parses a semicolon-delimited list of neighbor values.
// An unparseable entry discards the whole list, since the proximity order
// can no longer be trusted.
func ParseNeighborList(s string) []float64 {
	var out []float64
	for _, part := range strings.Split(s, ";") {
		v, present, valid := ParseReading(part)
		if !valid {
			return nil
		}
		if present {
			out = append(out, v)
		}
	}
	return out
}

// DecodePacket parses the JSON wire form of a packet. Missing or malformed
// fields are left empty for the QC stage to report; only a payload that is
// not a JSON object is an error.
func DecodePacket(data []byte) (Packet, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		if err == nil {
			err = ErrNotObject
		}
		return nil, fmt.Errorf("decode packet: %w", err)
	}

	kind := strings.ToLower(stringField(fields["type"]))
	switch {
	case kind == KindComposite, kind == "wind", kind == "radar":
		return decodeComposite(fields), nil
	case kind == "" && hasVariableKeys(fields):
		return decodeComposite(fields), nil
	default:
		return decodeObservation(kind, fields), nil
	}
}

func decodeObservation(kind string, fields map[string]json.RawMessage) ObservationPacket {
	p := ObservationPacket{
		Type:         kind,
		StationID:    stringField(fields["station_id"]),
		Metadata:     stringField(fields["metadata"]),
		StationClass: stringField(fields["station_class"]),
	}
	if v, ok := numberField(fields["value"]); ok {
		p.Value = Float(v)
	}
	p.Timestamp, _ = ParseTimestamp(stringField(fields["timestamp"]))
	p.Neighbors = decodeNeighbors(fields["neighbors"])
	return p
}

func decodeComposite(fields map[string]json.RawMessage) CompositePacket {
	p := CompositePacket{
		StationID:    stringField(fields["station_id"]),
		Values:       make(map[Variable]float64),
		Metadata:     stringField(fields["metadata"]),
		StationClass: stringField(fields["station_class"]),
	}
	p.Timestamp, _ = ParseTimestamp(stringField(fields["timestamp"]))

	set := func(v Variable, raw json.RawMessage) {
		if isNull(raw) {
			return
		}
		// Nested {"value": x} form used by older senders.
		if obj := objectField(raw); obj != nil {
			raw = obj["value"]
			if isNull(raw) {
				return
			}
		}
		if val, ok := numberField(raw); ok {
			p.Values[v] = val
			return
		}
		if present := presentField(raw); present {
			p.Invalid = append(p.Invalid, v)
		}
	}

	for _, v := range Variables {
		set(v, fields[string(v)])
	}
	if wind := objectField(fields["wind"]); wind != nil {
		set(WindSpeed, wind["speed"])
		set(WindDirection, wind["direction"])
	}
	if radar := objectField(fields["radar"]); radar != nil {
		set(RadarSNR, radar["snr"])
		set(RadarReflectivityBias, radar["reflectivity_bias"])
	}
	// Flat legacy radar/wind keys on single "radar"/"wind" packets.
	set(WindSpeed, fields["speed"])
	set(WindDirection, fields["direction"])
	set(RadarSNR, fields["snr"])
	set(RadarReflectivityBias, fields["reflectivity_bias"])

	switch raw := fields["neighbor_temp_values"]; {
	case isNull(raw):
	case bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")):
		var values []float64
		if err := json.Unmarshal(raw, &values); err == nil {
			for _, v := range values {
				p.Neighbors = append(p.Neighbors, Neighbor{Value: Float(v)})
			}
		}
	default:
		for _, v := range ParseNeighborList(stringField(raw)) {
			p.Neighbors = append(p.Neighbors, Neighbor{Value: Float(v)})
		}
	}
	if len(p.Neighbors) == 0 {
		p.Neighbors = decodeNeighbors(fields["neighbors"])
	}
	return p
}

func decodeNeighbors(raw json.RawMessage) []Neighbor {
	if isNull(raw) {
		return nil
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]Neighbor, 0, len(items))
	for _, item := range items {
		n := Neighbor{ID: stringField(item["id"])}
		if v, ok := numberField(item["value"]); ok {
			n.Value = Float(v)
		}
		out = append(out, n)
	}
	return out
}

func hasVariableKeys(fields map[string]json.RawMessage) bool {
	for _, v := range Variables {
		if _, ok := fields[string(v)]; ok {
			return true
		}
	}
	_, wind := fields["wind"]
	_, radar := fields["radar"]
	return wind || radar
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// presentField reports whether raw carries something other than an empty
// string or "NaN", which count as absent.
func presentField(raw json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		_, present, _ := ParseReading(s)
		return present
	}
	return !isNull(raw)
}

// stringField reads a JSON string; numbers are rendered as text.
func stringField(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// numberField reads a JSON number or a numeric string.
func numberField(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, present, valid := ParseReading(s)
		return v, present && valid
	}
	return 0, false
}

func objectField(raw json.RawMessage) map[string]json.RawMessage {
	if isNull(raw) {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}
