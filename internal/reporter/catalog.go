package reporter

import (
	"github.com/couchcryptid/station-qc/internal/domain"
	"github.com/couchcryptid/station-qc/internal/qc"
)

// defaultItem is the checklist when nothing calls for action.
const defaultItem = "Monitor feed; no immediate action."

// ruleItems is the action for each rule. variableItems overrides it for one
// (variable, rule) pair.
var ruleItems = map[string]string{
	qc.RuleExtremeValue:       "Verify sensor calibration against a reference instrument.",
	qc.RuleTemporalStep:       "Review recent readings for sudden jumps; check sensor connections and logger power.",
	qc.RuleSpatialConsistency: "Compare against neighbor stations; inspect siting and shielding.",
	qc.RuleRadarSNRLow:        "Inspect feed line and check radome for icing.",
	qc.RuleReflectivityBias:   "Schedule radar calibration against a reference target.",
	qc.RuleCalmWindDirection:  "Check wind vane for sticking or encoder offset.",
	qc.RulePrecipHumidity:     "Inspect tipping bucket for double tips and verify the hygrometer.",
	qc.RulePrecipFreezing:     "Ensure precipitation sensor heating is active.",
	qc.RulePrecipRegime:       "Inspect rain gauge for blockage or false tips.",
	qc.RuleDewPointBounds:     "Cross-check thermometer and hygrometer calibration.",
	qc.RuleOutOfOrder:         "Verify station clock synchronization and logger buffering.",
	qc.RuleRequiredField:      "Verify data logger output; fields are missing from the packet.",
	qc.RuleUnsupportedType:    "Confirm the sensor type mapping in the ingest configuration.",
}

var variableItems = map[string]string{
	itemKey(domain.Temperature, qc.RuleExtremeValue):       "Inspect thermistor and radiation shield for damage.",
	itemKey(domain.Humidity, qc.RuleExtremeValue):          "Replace or recalibrate the hygrometer element.",
	itemKey(domain.Pressure, qc.RuleExtremeValue):          "Verify barometer against a reference and check static port plumbing.",
	itemKey(domain.Precipitation, qc.RuleExtremeValue):     "Inspect rain gauge funnel and tipping mechanism.",
	itemKey(domain.WindSpeed, qc.RuleExtremeValue):         "Inspect anemometer bearings and cabling.",
	itemKey(domain.WindDirection, qc.RuleExtremeValue):     "Check wind vane alignment and encoder.",
	itemKey(domain.Pressure, qc.RuleTemporalStep):          "Check barometer offset; verify met mast and plumbing.",
	itemKey(domain.Temperature, qc.RuleSpatialConsistency): "Check radiation shield and aspiration fan for warm bias.",
}

// Closing items by classification and tier.
const (
	itemDispatch      = "Dispatch field technician within 24 hours."
	itemSiteVisit     = "Schedule site visit this week."
	itemManualReview  = "Escalate for manual review of raw data."
	itemCrossCheck    = "Cross-check with regional radar and forecast office."
	itemRecheckLater  = "Re-verify sensors if anomalies persist after the event."
	itemBackendNotice = "Remote diagnosis was unavailable; confirm the rule-based classification."
)

func itemKey(v domain.Variable, rule string) string {
	return string(v) + ":" + rule
}

// itemFor returns the catalog action for a verdict.
func itemFor(v domain.QcVerdict) (string, bool) {
	if item, ok := variableItems[itemKey(v.Variable, v.Rule)]; ok {
		return item, true
	}
	item, ok := ruleItems[v.Rule]
	return item, ok
}
