package qc

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/couchcryptid/station-qc/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Range is an absolute physical range, inclusive at both ends.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max" validate:"gtfield=Min"`
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// StepLimit bounds the rate of change between consecutive readings.
type StepLimit struct {
	MaxRatePerMinute float64       `yaml:"max_rate_per_minute" json:"max_rate_per_minute" validate:"gt=0"`
	CriticalRatio    float64       `yaml:"critical_ratio" json:"critical_ratio" validate:"gte=1"`
	MaxGap           time.Duration `yaml:"max_gap" json:"max_gap" validate:"gte=0"`
}

// SpatialLimit bounds the deviation from neighbor readings. The allowed
// deviation is max(SpreadMultiple × neighbor std, MinDelta).
type SpatialLimit struct {
	SpreadMultiple float64 `yaml:"spread_multiple" json:"spread_multiple" validate:"gt=0"`
	MinDelta       float64 `yaml:"min_delta" json:"min_delta" validate:"gte=0"`
	Center         string  `yaml:"center" json:"center" validate:"oneof=mean median"`
}

// RadarLimits holds radar health thresholds.
type RadarLimits struct {
	SNRFloorDB       float64 `yaml:"snr_floor_db" json:"snr_floor_db"`
	BiasToleranceDBZ float64 `yaml:"bias_tolerance_dbz" json:"bias_tolerance_dbz" validate:"gt=0"`
	BiasCriticalDBZ  float64 `yaml:"bias_critical_dbz" json:"bias_critical_dbz" validate:"gtfield=BiasToleranceDBZ"`
}

// ConsistencyLimits holds the cross-variable rule parameters.
type ConsistencyLimits struct {
	RainHumidityMinPrecip    float64 `yaml:"rain_humidity_min_precip" json:"rain_humidity_min_precip" validate:"gte=0"`
	RainHumidityMaxRH        float64 `yaml:"rain_humidity_max_rh" json:"rain_humidity_max_rh" validate:"gt=0,lte=100"`
	FreezingPrecipTemp       float64 `yaml:"freezing_precip_temp" json:"freezing_precip_temp"`
	HeavyPrecip              float64 `yaml:"heavy_precip" json:"heavy_precip" validate:"gt=0"`
	HighPressure             float64 `yaml:"high_pressure" json:"high_pressure" validate:"gt=0"`
	CalmWind                 float64 `yaml:"calm_wind" json:"calm_wind" validate:"gte=0"`
	SupersaturationTolerance float64 `yaml:"supersaturation_tolerance" json:"supersaturation_tolerance" validate:"gte=0"`
	MaxDewPointDepression    float64 `yaml:"max_dew_point_depression" json:"max_dew_point_depression" validate:"gt=0"`
}

// Thresholds is the full, validated QC configuration.
//
// When loaded from YAML, map entries replace the default entry for that key
// as a whole; struct sections merge field by field.
type Thresholds struct {
	Ranges      map[domain.Variable]Range            `yaml:"ranges" json:"ranges" validate:"dive"`
	ClassRanges map[string]map[domain.Variable]Range `yaml:"class_ranges" json:"class_ranges" validate:"dive,dive"`
	Steps       map[domain.Variable]StepLimit        `yaml:"steps" json:"steps" validate:"dive"`
	Spatial     map[domain.Variable]SpatialLimit     `yaml:"spatial" json:"spatial" validate:"dive"`
	Radar       RadarLimits                          `yaml:"radar" json:"radar"`
	Consistency ConsistencyLimits                    `yaml:"consistency" json:"consistency"`
}

// DefaultThresholds returns the network-wide defaults. Each call returns
// fresh maps.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Ranges: map[domain.Variable]Range{
			domain.Temperature:   {Min: -90, Max: 65},
			domain.Humidity:      {Min: 0, Max: 100.5},
			domain.Pressure:      {Min: 300, Max: 1100},
			domain.Precipitation: {Min: 0, Max: 20},
			domain.WindSpeed:     {Min: 0, Max: 100},
			domain.WindDirection: {Min: 0, Max: 360},

			domain.RadarReflectivityBias: {Min: -20, Max: 20},
		},
		ClassRanges: map[string]map[domain.Variable]Range{},
		Steps: map[domain.Variable]StepLimit{
			domain.Temperature: {MaxRatePerMinute: 5, CriticalRatio: 3, MaxGap: time.Hour},
			domain.Pressure:    {MaxRatePerMinute: 3, CriticalRatio: 3, MaxGap: time.Hour},
			domain.Humidity:    {MaxRatePerMinute: 20, CriticalRatio: 3, MaxGap: time.Hour},
		},
		Spatial: map[domain.Variable]SpatialLimit{
			domain.Temperature: {SpreadMultiple: 3, MinDelta: 2, Center: "mean"},
			domain.Pressure:    {SpreadMultiple: 3, MinDelta: 3, Center: "median"},
			domain.Humidity:    {SpreadMultiple: 3, MinDelta: 15, Center: "median"},
		},
		Radar: RadarLimits{
			SNRFloorDB:       10,
			BiasToleranceDBZ: 3,
			BiasCriticalDBZ:  10,
		},
		Consistency: ConsistencyLimits{
			RainHumidityMinPrecip:    0.5,
			RainHumidityMaxRH:        30,
			FreezingPrecipTemp:       -5,
			HeavyPrecip:              2,
			HighPressure:             1030,
			CalmWind:                 0.5,
			SupersaturationTolerance: 0.5,
			MaxDewPointDepression:    50,
		},
	}
}

// LoadThresholds reads a YAML file over the defaults and validates the
// result. An empty path returns the defaults.
func LoadThresholds(path string) (Thresholds, error) {
	th := DefaultThresholds()
	if path == "" {
		return th, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, fmt.Errorf("read thresholds: %w", err)
	}
	if err := yaml.Unmarshal(data, &th); err != nil {
		return Thresholds{}, fmt.Errorf("parse thresholds %s: %w", path, err)
	}
	if err := th.Validate(); err != nil {
		return Thresholds{}, fmt.Errorf("thresholds %s: %w", path, err)
	}
	return th, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every threshold for internal consistency.
func (t Thresholds) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}

	var errs []error
	for v := range t.Ranges {
		if !v.Known() {
			errs = append(errs, fmt.Errorf("ranges: unknown variable %q", v))
		}
	}
	for class, ranges := range t.ClassRanges {
		for v := range ranges {
			if !v.Known() {
				errs = append(errs, fmt.Errorf("class_ranges[%s]: unknown variable %q", class, v))
			}
		}
	}
	for v := range t.Steps {
		if !v.Known() {
			errs = append(errs, fmt.Errorf("steps: unknown variable %q", v))
		}
	}
	for v := range t.Spatial {
		if !v.Known() {
			errs = append(errs, fmt.Errorf("spatial: unknown variable %q", v))
		}
	}
	return errors.Join(errs...)
}

// RangeFor returns the range for v, preferring a station-class override.
func (t Thresholds) RangeFor(v domain.Variable, class string) (Range, bool) {
	if class != "" {
		if r, ok := t.ClassRanges[class][v]; ok {
			return r, true
		}
	}
	r, ok := t.Ranges[v]
	return r, ok
}
