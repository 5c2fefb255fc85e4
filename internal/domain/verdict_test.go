package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnomalySummary_SortsAndAggregates(t *testing.T) {
	ts := time.Date(2025, 12, 1, 14, 0, 0, 0, time.UTC)
	summary := NewAnomalySummary("S1", ts, KindComposite, []QcVerdict{
		Fail(Temperature, "spatial_consistency", SeverityWarn, "deviation"),
		Pass(Humidity, "extreme_value", "ok"),
		Fail(Pressure, "extreme_value", SeverityCritical, "out of range"),
		Inconclusive(Temperature, "temporal_step", "no timestamp"),
	})

	keys := make([]string, 0, len(summary.Verdicts))
	for _, v := range summary.Verdicts {
		keys = append(keys, v.Key())
	}
	assert.Equal(t, []string{
		"humidity/extreme_value",
		"pressure/extreme_value",
		"temperature/spatial_consistency",
		"temperature/temporal_step",
	}, keys)
	assert.Equal(t, SeverityCritical, summary.Severity)
	assert.False(t, summary.Passed())
	assert.Len(t, summary.Anomalies(), 2)
	assert.Len(t, summary.Inconclusive(), 1)
	assert.Equal(t, []string{"extreme_value", "spatial_consistency"}, summary.FailingRules())
}

func TestNewAnomalySummary_InconclusiveDoesNotRaiseSeverity(t *testing.T) {
	summary := NewAnomalySummary("S1", time.Time{}, "humidity", []QcVerdict{
		Inconclusive(Humidity, "required_field", "missing value"),
	})
	assert.Equal(t, SeverityNone, summary.Severity)
	assert.True(t, summary.Passed())
}

func TestQcVerdict_MarshalIncludesPassed(t *testing.T) {
	data, err := json.Marshal(Fail(RadarSNR, "radar_snr_low", SeverityCritical, "low").WithMetric("snr_db", 2))
	require.NoError(t, err)
	assert.JSONEq(t, `{"variable":"radar_snr","rule_name":"radar_snr_low","status":"fail","severity":"critical","detail":"low","metrics":{"snr_db":2},"passed":false}`, string(data))

	var back QcVerdict
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, StatusFail, back.Status)
}

func TestMaxSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityWarn, SeverityCritical))
	assert.Equal(t, SeverityWarn, MaxSeverity(SeverityWarn, SeverityNone))
	assert.Equal(t, SeverityNone, MaxSeverity("", SeverityNone))
}

func TestDiagnosisResult_Validate(t *testing.T) {
	ok := DiagnosisResult{Classification: ClassDeviceFault, Confidence: 0.8, Rationale: "isolated failure"}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.Confidence = 1.5
	assert.Error(t, bad.Validate())

	bad = ok
	bad.Classification = "maybe"
	assert.Error(t, bad.Validate())
}
