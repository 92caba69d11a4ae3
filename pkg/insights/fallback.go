package insights

import "github.com/smith3v/climatewatch-notifier/pkg/weather"

var defaultHealthTips = []string{
	"Start your day with a glass of water and light stretching",
	"Eat cooling foods like cucumber, watermelon, and yogurt",
	"Take breaks in shade or AC every hour if working outdoors",
	"Check air quality before planning outdoor exercise",
}

type conditions struct {
	avgTemp float64
	maxTemp float64
	maxAQI  int
	maxUV   float64
}

func summarize(snapshots []weather.Snapshot) conditions {
	var c conditions
	if len(snapshots) == 0 {
		return c
	}
	var total float64
	c.maxTemp = snapshots[0].Temperature
	for _, s := range snapshots {
		total += s.Temperature
		if s.Temperature > c.maxTemp {
			c.maxTemp = s.Temperature
		}
		if s.AQI > c.maxAQI {
			c.maxAQI = s.AQI
		}
		if s.UVIndex > c.maxUV {
			c.maxUV = s.UVIndex
		}
	}
	c.avgTemp = total / float64(len(snapshots))
	return c
}

// Fallback derives advice from the snapshots alone. It is a pure function of its input.
func Fallback(snapshots []weather.Snapshot) HealthInsights {
	c := summarize(snapshots)
	tips := make([]string, len(defaultHealthTips))
	copy(tips, defaultHealthTips)
	return HealthInsights{
		OverallRisk:            overallRisk(c),
		Recommendations:        recommendations(c),
		HealthTips:             tips,
		AirQualityAdvice:       AirQualityAdvice(c.maxAQI),
		UVProtection:           UVAdvice(c.maxUV),
		ExerciseRecommendation: exerciseAdvice(c),
	}
}

func overallRisk(c conditions) string {
	switch {
	case c.maxTemp > 40 || c.maxAQI > 200 || c.maxUV > 8:
		return "High risk day - Take extra precautions for heat, air quality, and UV exposure"
	case c.maxTemp > 35 || c.maxAQI > 100 || c.maxUV > 6:
		return "Moderate risk - Be mindful of outdoor activities and sun exposure"
	default:
		return "Low to moderate risk - Generally safe conditions with normal precautions"
	}
}

func recommendations(c conditions) []string {
	var out []string
	if c.avgTemp > 35 {
		out = append(out,
			"Stay hydrated - drink water every 30 minutes",
			"Avoid outdoor activities during 11 AM - 4 PM",
		)
	}
	if c.maxAQI > 100 {
		out = append(out,
			"Wear N95 masks when outdoors",
			"Keep windows closed and use air purifiers indoors",
		)
	}
	return append(out, "Monitor elderly and children for heat-related symptoms")
}

func AirQualityAdvice(aqi int) string {
	switch {
	case aqi > 200:
		return "Very unhealthy air quality. Avoid all outdoor activities. Use air purifiers and keep windows closed."
	case aqi > 100:
		return "Unhealthy for sensitive groups. Limit outdoor exposure and wear masks when outside."
	case aqi > 50:
		return "Moderate air quality. Sensitive individuals should consider limiting prolonged outdoor exertion."
	default:
		return "Good air quality. Safe for all outdoor activities."
	}
}

func UVAdvice(uv float64) string {
	switch {
	case uv > 8:
		return "Very high UV levels. Use SPF 30+ sunscreen, wear protective clothing, and seek shade between 10 AM - 4 PM."
	case uv > 6:
		return "High UV levels. Apply SPF 15+ sunscreen and wear a hat when outdoors."
	case uv > 3:
		return "Moderate UV levels. Use sunscreen during midday hours."
	default:
		return "Low UV levels. Minimal sun protection required."
	}
}

func exerciseAdvice(c conditions) string {
	switch {
	case c.avgTemp > 35 || c.maxAQI > 150:
		return "Exercise indoors today. Try yoga, indoor cycling, or gym workouts with good ventilation."
	case c.avgTemp > 30 || c.maxAQI > 100:
		return "Exercise early morning (6-8 AM) or evening (6-8 PM). Stay hydrated and take frequent breaks."
	default:
		return "Good conditions for outdoor exercise. Morning and evening are ideal times."
	}
}
