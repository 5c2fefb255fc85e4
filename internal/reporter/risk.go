// Package reporter turns a diagnosed anomaly summary into a maintenance
// ticket.
package reporter

import "github.com/couchcryptid/station-qc/internal/domain"

// Confidence cut points of the risk table.
const (
	HighConfidence = 0.8
	LowConfidence  = 0.6
)

// Risk maps severity and diagnosis onto a risk tier. For a fixed
// classification and confidence, risk never decreases as severity rises.
// Device-fault risk rises with confidence; weather-extreme risk falls.
//
//	classification   confidence   warn     critical
//	nominal          any          low      low
//	device_fault     < 0.8        medium   high
//	device_fault     >= 0.8       high     critical
//	weather_extreme  >= 0.8       low      low
//	weather_extreme  0.6 - 0.8    low      medium
//	weather_extreme  < 0.6        medium   high
//	inconclusive     any          medium   high
func Risk(severity domain.Severity, d domain.DiagnosisResult) domain.RiskLevel {
	if severity.Rank() == 0 || d.Classification == domain.ClassNominal {
		return domain.RiskLow
	}
	critical := severity == domain.SeverityCritical

	switch d.Classification {
	case domain.ClassDeviceFault:
		if d.Confidence >= HighConfidence {
			return pick(critical, domain.RiskCritical, domain.RiskHigh)
		}
		return pick(critical, domain.RiskHigh, domain.RiskMedium)
	case domain.ClassWeatherExtreme:
		switch {
		case d.Confidence >= HighConfidence:
			return domain.RiskLow
		case d.Confidence >= LowConfidence:
			return pick(critical, domain.RiskMedium, domain.RiskLow)
		}
		return pick(critical, domain.RiskHigh, domain.RiskMedium)
	default:
		return pick(critical, domain.RiskHigh, domain.RiskMedium)
	}
}

func pick(critical bool, ifCritical, otherwise domain.RiskLevel) domain.RiskLevel {
	if critical {
		return ifCritical
	}
	return otherwise
}
