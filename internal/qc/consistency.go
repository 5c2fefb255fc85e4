package qc

import (
	"fmt"
	"math"

	"github.com/couchcryptid/station-qc/internal/domain"
)

// Magnus coefficients over water (Sonntag 1990).
const (
	magnusA = 17.62
	magnusB = 243.12
)

// Readings looks up a composite reading.
type Readings interface {
	Value(v domain.Variable) (float64, bool)
}

// CrossVariable runs the joint rules over a composite reading. A rule runs
// only when its trigger variable is present; a missing partner variable
// makes it inconclusive.
func CrossVariable(r Readings, limits ConsistencyLimits) []domain.QcVerdict {
	var out []domain.QcVerdict

	temp, hasTemp := r.Value(domain.Temperature)
	rh, hasRH := r.Value(domain.Humidity)

	if precip, ok := r.Value(domain.Precipitation); ok {
		out = append(out,
			precipHumidity(precip, rh, hasRH, limits),
			precipFreezing(precip, temp, hasTemp, limits),
			precipRegime(precip, r, limits),
		)
	}
	if hasTemp && hasRH {
		out = append(out, dewPointBounds(temp, rh, limits))
	}
	return out
}

func precipHumidity(precip, rh float64, hasRH bool, limits ConsistencyLimits) domain.QcVerdict {
	if precip <= limits.RainHumidityMinPrecip {
		return domain.Pass(domain.CrossVariable, RulePrecipHumidity, "No significant precipitation.")
	}
	if !hasRH {
		return domain.Inconclusive(domain.CrossVariable, RulePrecipHumidity, "Humidity missing; rain/humidity check skipped.")
	}
	if rh < limits.RainHumidityMaxRH {
		return domain.Fail(domain.CrossVariable, RulePrecipHumidity, domain.SeverityWarn,
			fmt.Sprintf("Physics mismatch: raining (%gmm) but humidity is low (%g%%). Suspect tipping bucket error.", precip, rh))
	}
	return domain.Pass(domain.CrossVariable, RulePrecipHumidity, "Humidity consistent with precipitation.")
}

func precipFreezing(precip, temp float64, hasTemp bool, limits ConsistencyLimits) domain.QcVerdict {
	if precip <= 0 {
		return domain.Pass(domain.CrossVariable, RulePrecipFreezing, "No precipitation.")
	}
	if !hasTemp {
		return domain.Inconclusive(domain.CrossVariable, RulePrecipFreezing, "Temperature missing; phase check skipped.")
	}
	if temp < limits.FreezingPrecipTemp {
		return domain.Fail(domain.CrossVariable, RulePrecipFreezing, domain.SeverityWarn,
			fmt.Sprintf("Precipitation detected at %gC. Ensure sensor heating is active.", temp))
	}
	return domain.Pass(domain.CrossVariable, RulePrecipFreezing, "Liquid precipitation plausible.")
}

// precipRegime flags heavy rain under a calm, strongly anticyclonic profile,
// which matches no known precipitating regime.
func precipRegime(precip float64, r Readings, limits ConsistencyLimits) domain.QcVerdict {
	if precip < limits.HeavyPrecip {
		return domain.Pass(domain.CrossVariable, RulePrecipRegime, "Precipitation below heavy threshold.")
	}
	pressure, hasPressure := r.Value(domain.Pressure)
	wind, hasWind := r.Value(domain.WindSpeed)
	if !hasPressure || !hasWind {
		return domain.Inconclusive(domain.CrossVariable, RulePrecipRegime, "Pressure or wind missing; regime check skipped.")
	}
	if pressure >= limits.HighPressure && wind < limits.CalmWind {
		return domain.Fail(domain.CrossVariable, RulePrecipRegime, domain.SeverityWarn,
			fmt.Sprintf("Heavy precipitation %gmm with calm wind %gm/s under high pressure %ghPa.", precip, wind, pressure))
	}
	return domain.Pass(domain.CrossVariable, RulePrecipRegime, "Precipitation consistent with weather regime.")
}

func dewPointBounds(temp, rh float64, limits ConsistencyLimits) domain.QcVerdict {
	if rh <= 0 {
		return domain.Inconclusive(domain.CrossVariable, RuleDewPointBounds, "Dew point undefined for non-positive humidity.")
	}
	dew := DewPoint(temp, rh)
	depression := temp - dew

	verdict := domain.Pass(domain.CrossVariable, RuleDewPointBounds, fmt.Sprintf("Dew point %.1fC.", dew))
	switch {
	case dew > temp+limits.SupersaturationTolerance:
		verdict = domain.Fail(domain.CrossVariable, RuleDewPointBounds, domain.SeverityWarn,
			fmt.Sprintf("Dew point %.1fC above air temperature %gC.", dew, temp))
	case depression > limits.MaxDewPointDepression:
		verdict = domain.Fail(domain.CrossVariable, RuleDewPointBounds, domain.SeverityWarn,
			fmt.Sprintf("Dew point depression %.1fC is implausible.", depression))
	}
	return verdict.WithMetric("dew_point", dew)
}

// DewPoint returns the Magnus dew point in °C.
func DewPoint(temp, rh float64) float64 {
	gamma := math.Log(rh/100) + magnusA*temp/(magnusB+temp)
	return magnusB * gamma / (magnusA - gamma)
}
