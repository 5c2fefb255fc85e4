package domain

import (
	"maps"
	"slices"
	"time"
)

// KindComposite is the packet kind of a multi-variable reading.
const KindComposite = "composite"

// Neighbor is a snapshot reading from a nearby station.
type Neighbor struct {
	ID    string   `json:"id,omitempty"`
	Value *float64 `json:"value"`
}

// Packet is one unit of input to the QC pipeline.
type Packet interface {
	// Station returns the reporting station id, empty when the sender omitted it.
	Station() string
	// ObservedAt returns the observation time, zero when missing or unparseable.
	ObservedAt() time.Time
	// Kind is the declared variable for single-variable packets, or "composite".
	Kind() string
	// Context is the free-text weather metadata attached by the sender.
	Context() string
	// NeighborReadings returns the neighbor snapshot in proximity order.
	NeighborReadings() []Neighbor
}

// ObservationPacket is a single-variable reading.
type ObservationPacket struct {
	Type         string     `json:"type"`
	StationID    string     `json:"station_id"`
	Value        *float64   `json:"value"`
	Timestamp    time.Time  `json:"timestamp"`
	Neighbors    []Neighbor `json:"neighbors,omitempty"`
	Metadata     string     `json:"metadata,omitempty"`
	StationClass string     `json:"station_class,omitempty"`
}

// NewObservation builds a single-variable packet. The neighbor slice is copied.
func NewObservation(v Variable, stationID string, value float64, ts time.Time, neighbors ...Neighbor) ObservationPacket {
	return ObservationPacket{
		Type:      string(v),
		StationID: stationID,
		Value:     Float(value),
		Timestamp: ts,
		Neighbors: slices.Clone(neighbors),
	}
}

func (p ObservationPacket) Station() string              { return p.StationID }
func (p ObservationPacket) ObservedAt() time.Time        { return p.Timestamp }
func (p ObservationPacket) Kind() string                 { return p.Type }
func (p ObservationPacket) Context() string              { return p.Metadata }
func (p ObservationPacket) NeighborReadings() []Neighbor { return slices.Clone(p.Neighbors) }

// Variable returns the declared variable. It may be unknown.
func (p ObservationPacket) Variable() Variable { return Variable(p.Type) }

// CompositePacket is one multi-sensor reading at one station and time.
type CompositePacket struct {
	StationID    string
	Timestamp    time.Time
	Values       map[Variable]float64
	Invalid      []Variable // present in the source but not numeric
	Neighbors    []Neighbor // neighbor temperature snapshot
	Metadata     string
	StationClass string
}

// NewComposite builds a composite packet. Maps and slices are copied.
func NewComposite(stationID string, ts time.Time, values map[Variable]float64, neighborTemps []float64, metadata string) CompositePacket {
	neighbors := make([]Neighbor, 0, len(neighborTemps))
	for _, t := range neighborTemps {
		neighbors = append(neighbors, Neighbor{Value: Float(t)})
	}
	return CompositePacket{
		StationID: stationID,
		Timestamp: ts,
		Values:    maps.Clone(values),
		Neighbors: neighbors,
		Metadata:  metadata,
	}
}

func (p CompositePacket) Station() string              { return p.StationID }
func (p CompositePacket) ObservedAt() time.Time        { return p.Timestamp }
func (p CompositePacket) Kind() string                 { return KindComposite }
func (p CompositePacket) Context() string              { return p.Metadata }
func (p CompositePacket) NeighborReadings() []Neighbor { return slices.Clone(p.Neighbors) }

// Value returns the reading for v and whether it is present.
func (p CompositePacket) Value(v Variable) (float64, bool) {
	val, ok := p.Values[v]
	return val, ok
}

// IsInvalid reports whether v was supplied but could not be parsed.
func (p CompositePacket) IsInvalid(v Variable) bool {
	return slices.Contains(p.Invalid, v)
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
