// Package risk derives a respiratory-health risk level from a snapshot of
// environmental readings. Everything here is pure: no I/O and no shared state,
// so Assess is safe for concurrent use.
package risk

import "breathewatch/internal/types"

// Trigger labels in evaluation order.
const (
	TriggerPoorAir      = "Poor Air Quality"
	TriggerModerateAir  = "Moderate Air Pollution"
	TriggerColdAir      = "Cold Air"
	TriggerExtremeHeat  = "Extreme Heat"
	TriggerHighHumidity = "High Humidity"
	TriggerHighWind     = "High Wind (Allergens)"
	TriggerNoneDetected = "None detected"
)

// Thresholds. Temperature and humidity/wind comparisons are strict.
const (
	PoorAQIThreshold     = 4
	ModerateAQIThreshold = 3
	ColdTempC            = 10.0
	HeatTempC            = 32.0
	HumidityPct          = 75.0
	WindSpeedMps         = 10.0
)

// Level cutoffs on the cumulative score.
const (
	ExtremeScore  = 5
	HighScore     = 3
	ModerateScore = 1
)

const (
	advicePoorAir      = "Air quality is poor. Limit outdoor activity and keep your rescue inhaler close."
	adviceModerateAir  = "Moderate pollution. Sensitive groups should reduce prolonged outdoor exertion."
	adviceColdAir      = "Cold air can trigger bronchospasm. Cover your nose and mouth with a scarf outdoors."
	adviceExtremeHeat  = "Extreme heat. Stay hydrated and avoid outdoor exercise during peak hours."
	adviceHighHumidity = "High humidity may make breathing harder. Use a dehumidifier or air conditioning indoors."
	adviceHighWind     = "High winds can spread pollen and dust. Keep windows closed and consider a mask outdoors."
	adviceStable       = "Conditions are stable. Keep following your usual asthma action plan."
)

type rule struct {
	points  int
	trigger string
	advice  string
}

var (
	rulePoorAir      = rule{3, TriggerPoorAir, advicePoorAir}
	ruleModerateAir  = rule{2, TriggerModerateAir, adviceModerateAir}
	ruleColdAir      = rule{2, TriggerColdAir, adviceColdAir}
	ruleExtremeHeat  = rule{1, TriggerExtremeHeat, adviceExtremeHeat}
	ruleHighHumidity = rule{2, TriggerHighHumidity, adviceHighHumidity}
	ruleHighWind     = rule{1, TriggerHighWind, adviceHighWind}
)

// Assess scores the snapshot additively and maps the total to a level.
// Triggers and advice are appended in rule order, one advice entry per
// trigger. A zero score yields a single "None detected" entry.
//
// The snapshot must already be normalized (no NaN, AQI in [1,5]).
func Assess(s types.EnvironmentalSnapshot) types.RiskAssessment {
	var matched []rule

	if s.AirQualityIndex >= PoorAQIThreshold {
		matched = append(matched, rulePoorAir)
	} else if s.AirQualityIndex >= ModerateAQIThreshold {
		matched = append(matched, ruleModerateAir)
	}

	if s.TemperatureC < ColdTempC {
		matched = append(matched, ruleColdAir)
	} else if s.TemperatureC > HeatTempC {
		matched = append(matched, ruleExtremeHeat)
	}

	if s.HumidityPct > HumidityPct {
		matched = append(matched, ruleHighHumidity)
	}

	if s.WindSpeedMps > WindSpeedMps {
		matched = append(matched, ruleHighWind)
	}

	if len(matched) == 0 {
		return types.RiskAssessment{
			Level:    types.RiskLow,
			Score:    0,
			Triggers: []string{TriggerNoneDetected},
			Advice:   []string{adviceStable},
		}
	}

	out := types.RiskAssessment{
		Triggers: make([]string, 0, len(matched)),
		Advice:   make([]string, 0, len(matched)),
	}
	for _, r := range matched {
		out.Score += r.points
		out.Triggers = append(out.Triggers, r.trigger)
		out.Advice = append(out.Advice, r.advice)
	}
	out.Level = LevelForScore(out.Score)
	return out
}

// LevelForScore maps a cumulative score to its level.
func LevelForScore(score int) types.RiskLevel {
	switch {
	case score >= ExtremeScore:
		return types.RiskExtreme
	case score >= HighScore:
		return types.RiskHigh
	case score >= ModerateScore:
		return types.RiskModerate
	default:
		return types.RiskLow
	}
}
