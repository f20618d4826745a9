package comparison

import "strings"

// specLabels maps the spec keys used by the seed catalog to display labels.
var specLabels = map[string]string{
	"gear_ratio":      "Gear Ratio",
	"torque_kg_cm":    "Torque (kg·cm)",
	"voltage_v":       "Voltage (V)",
	"speed_sec_60deg": "Speed (sec/60°)",
	"current_a":       "Current (A)",
	"weight_g":        "Weight (g)",
	"resolution":      "Resolution",
	"fps":             "Frame Rate (fps)",
	"interface":       "Interface",
	"connector":       "Connector",
	"length_m":        "Length (m)",
	"channels":        "Channels",
	"baud_rate":       "Baud Rate",
	"sensor":          "Sensor",
	"material":        "Material",
	"depth_sensing":   "Depth Sensing",
	"field_of_view":   "Field of View",
}

// displayName resolves the label for a spec key, title-casing unknown keys.
func displayName(key string) string {
	if label, ok := specLabels[key]; ok {
		return label
	}
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
