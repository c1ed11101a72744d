package risk

import "breathewatch/internal/types"

var categories = map[types.RiskLevel]types.SeverityCategory{
	types.RiskLow:      {Category: "success", Color: "#16a34a", Label: "Low Risk"},
	types.RiskModerate: {Category: "warning", Color: "#ca8a04", Label: "Moderate Risk"},
	types.RiskHigh:     {Category: "alert", Color: "#ea580c", Label: "High Risk"},
	types.RiskExtreme:  {Category: "danger", Color: "#dc2626", Label: "Extreme Risk"},
}

// Category returns the severity styling for a level. Unknown levels fall
// back to the Low category.
func Category(level types.RiskLevel) types.SeverityCategory {
	if c, ok := categories[level]; ok {
		return c
	}
	return categories[types.RiskLow]
}

// AQILabel returns the provider's name for an AQI value on the 1..5 scale.
func AQILabel(aqi int) string {
	switch aqi {
	case 1:
		return "Good"
	case 2:
		return "Fair"
	case 3:
		return "Moderate"
	case 4:
		return "Poor"
	case 5:
		return "Very Poor"
	default:
		return "Unknown"
	}
}
