package domain

import "time"

// Sample is one timestamped value in a station's history.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}
