package qc

// Rule names. A verdict is keyed by (variable, rule), so a rule name appears
// at most once per variable in a packet.
const (
	RuleRequiredField      = "required_field"
	RuleUnsupportedType    = "unsupported_type"
	RuleExtremeValue       = "extreme_value"
	RuleTemporalStep       = "temporal_step"
	RuleSpatialConsistency = "spatial_consistency"
	RuleRadarSNRLow        = "radar_snr_low"
	RuleReflectivityBias   = "radar_reflectivity_bias"
	RuleCalmWindDirection  = "calm_wind_direction"
	RulePrecipHumidity     = "precip_humidity_mismatch"
	RulePrecipFreezing     = "precip_below_freezing"
	RulePrecipRegime       = "precip_regime_mismatch"
	RuleDewPointBounds     = "dew_point_bounds"
	RuleOutOfOrder         = "out_of_order"
)

// EvidenceLoss reports whether a rule marks missing evidence rather than a
// measurement problem.
func EvidenceLoss(rule string) bool {
	return rule == RuleRequiredField || rule == RuleUnsupportedType
}
