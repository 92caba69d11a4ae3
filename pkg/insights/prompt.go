package insights

import (
	"fmt"
	"math"
	"strings"

	"github.com/smith3v/climatewatch-notifier/pkg/weather"
)

// BuildPrompt asks for a JSON object with the HealthInsights keys.
func BuildPrompt(snapshots []weather.Snapshot) string {
	var b strings.Builder
	b.WriteString("Based on the following weather and environmental data for Indian cities, provide comprehensive health insights:\n")
	for _, s := range snapshots {
		fmt.Fprintf(&b, "\nCity: %s\n", s.City)
		fmt.Fprintf(&b, "Temperature: %d°C\n", int(math.Round(s.Temperature)))
		fmt.Fprintf(&b, "Humidity: %d%%\n", int(math.Round(s.Humidity)))
		fmt.Fprintf(&b, "Air Quality Index: %d\n", s.AQI)
		fmt.Fprintf(&b, "UV Index: %d\n", int(math.Round(s.UVIndex)))
		fmt.Fprintf(&b, "Wind Speed: %d km/h\n", int(math.Round(s.WindSpeed)))
		fmt.Fprintf(&b, "Conditions: %s\n", s.Description)
	}
	b.WriteString(`
Please provide:
1. Overall health risk assessment
2. 3-4 specific health recommendations
3. 3-4 practical health tips for today
4. Air quality advice
5. UV protection guidance
6. Exercise recommendations

Format as JSON with keys: overallRisk, recommendations (array), healthTips (array), airQualityAdvice, uvProtection, exerciseRecommendation
Keep responses concise and actionable for Indian climate conditions.
`)
	return b.String()
}
