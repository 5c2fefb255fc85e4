// Package domain models weather-station and radar observations, the quality
// control verdicts raised against them, and the maintenance tickets they
// produce.
//
// # Observation Packets
//
// Stations publish one of two packet shapes:
//
//	Single-variable: {"type":"temperature","station_id":"S1","value":29.0,
//	                  "timestamp":"2025-12-01T14:00:00Z",
//	                  "neighbors":[{"id":"S2","value":24.1}]}
//	Composite:       {"station_id":"S5","timestamp":"...","temperature":24.0,
//	                  "humidity":55,"neighbor_temp_values":"23.9;24.1",
//	                  "metadata":"Clear sky"}
//
// Older senders emit "wind" packets ({"speed","direction"}) and "radar"
// packets ({"snr","reflectivity_bias"}); both decode to composite packets
// holding the corresponding variables.
//
// Neighbor order is spatial proximity rank (nearest first) when the sender
// knows it. Neighbor values are a snapshot taken by the sender, not live state.
//
// # Units
//
//	temperature              °C
//	humidity                 % relative humidity
//	pressure                 hPa (station level)
//	precipitation            mm accumulated over one minute
//	wind_speed               m/s
//	wind_direction           degrees clockwise from north, 0–360
//	radar_snr                dB
//	radar_reflectivity_bias  dBZ against the calibration reference
//
// # Missing and Malformed Fields
//
// A missing value, station id, or timestamp is never a decode error. The
// affected checks report an inconclusive verdict instead, and the packet still
// produces a ticket with reduced evidence. Only bytes that are not a JSON
// object at all fail to decode.
//
// # Verdict Severity
//
// Severity is critical only when a hard physical bound is violated (or, for the
// temporal step check, when the rate exceeds the limit by the configured
// critical ratio). Statistical and cross-variable deviations are warnings.
package domain
