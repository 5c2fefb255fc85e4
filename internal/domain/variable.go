package domain

import "strings"

// Variable names a measured quantity.
type Variable string

const (
	Temperature           Variable = "temperature"
	Humidity              Variable = "humidity"
	Pressure              Variable = "pressure"
	Precipitation         Variable = "precipitation"
	WindSpeed             Variable = "wind_speed"
	WindDirection         Variable = "wind_direction"
	RadarSNR              Variable = "radar_snr"
	RadarReflectivityBias Variable = "radar_reflectivity_bias"

	// CrossVariable keys verdicts of rules that read several variables at once.
	CrossVariable Variable = "cross_variable"
)

// Variables lists the measured variables in canonical order. The order is
// the CSV column order and the order checks run in for composite packets.
var Variables = []Variable{
	Temperature,
	Humidity,
	Pressure,
	Precipitation,
	WindSpeed,
	WindDirection,
	RadarSNR,
	RadarReflectivityBias,
}

// Known reports whether v is one of the measured variables.
func (v Variable) Known() bool {
	for _, k := range Variables {
		if k == v {
			return true
		}
	}
	return false
}

// Severity grades a verdict.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: none < warn < critical.
func (s Severity) Rank() int {
	switch s {
	case SeverityWarn:
		return 1
	case SeverityCritical:
		return 2
	default:
		return 0
	}
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	if a == "" {
		return SeverityNone
	}
	return a
}

// Status is the outcome of one rule invocation.
type Status string

const (
	StatusPass         Status = "pass"
	StatusFail         Status = "fail"
	StatusInconclusive Status = "inconclusive"
)

// Classification is the diagnostic conclusion for a packet.
type Classification string

const (
	ClassDeviceFault    Classification = "device_fault"
	ClassWeatherExtreme Classification = "weather_extreme"
	ClassInconclusive   Classification = "inconclusive"
	// ClassNominal means no diagnostic anomaly was raised.
	ClassNominal Classification = "nominal"
)

// Valid reports whether c is a known classification.
func (c Classification) Valid() bool {
	switch c {
	case ClassDeviceFault, ClassWeatherExtreme, ClassInconclusive, ClassNominal:
		return true
	}
	return false
}

// RiskLevel is the ticket urgency tier.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders risk levels: low < medium < high < critical.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

// ParseRiskLevel accepts a risk level in any letter case.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch r := RiskLevel(strings.ToLower(strings.TrimSpace(s))); r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return r, true
	}
	return "", false
}
