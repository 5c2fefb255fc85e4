package domain

import (
	"errors"
	"fmt"
)

// Diagnosis backends.
const (
	BackendRuleBased = "rule_based"
	BackendRemote    = "remote"
)

// DiagnosisResult classifies the anomalies of one packet.
type DiagnosisResult struct {
	Classification Classification `json:"classification"`
	Confidence     float64        `json:"confidence"`
	Rationale      string         `json:"rationale"`
	Backend        string         `json:"backend,omitempty"`
	Fallback       bool           `json:"fallback,omitempty"`
}

// Validate checks that the result is usable by the reporter.
func (d DiagnosisResult) Validate() error {
	if !d.Classification.Valid() {
		return fmt.Errorf("unknown classification %q", d.Classification)
	}
	if d.Confidence < 0 || d.Confidence > 1 || d.Confidence != d.Confidence {
		return fmt.Errorf("confidence %v outside [0,1]", d.Confidence)
	}
	if d.Rationale == "" {
		return errors.New("empty rationale")
	}
	return nil
}
