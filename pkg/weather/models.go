// Package weather produces per-city weather snapshots for notification emails.
package weather

import (
	"errors"
	"fmt"
	"math"
)

// Risk is the derived health-risk level for a snapshot.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

const (
	SourceOpenWeather = "openweather"
	SourceMock        = "mock"
	// SourcePartial is live air quality over mock conditions.
	SourcePartial = "partial"
)

var ErrNoAPIKey = errors.New("openweather api key is not configured")

type Snapshot struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"` // °C
	Humidity    float64 `json:"humidity"`    // %
	Pressure    float64 `json:"pressure"`    // hPa
	AQI         int     `json:"aqi"`
	UVIndex     float64 `json:"uvIndex"`
	WindSpeed   float64 `json:"windSpeed"` // km/h
	Description string  `json:"description"`
	Risk        Risk    `json:"healthRisk"`
	Source      string  `json:"source"`
}

// ClassifyRisk maps temperature and AQI to a health-risk level.
func ClassifyRisk(temperature float64, aqi int) Risk {
	switch {
	case temperature > 40 || aqi > 200:
		return RiskCritical
	case temperature > 35 || aqi > 150:
		return RiskHigh
	case temperature > 30 || aqi > 100:
		return RiskMedium
	default:
		return RiskLow
	}
}

// SummaryLine renders the one-line city summary used in email bodies.
func (s Snapshot) SummaryLine() string {
	return fmt.Sprintf("%s: %d°C, %s, AQI: %d, UV: %d",
		s.City, int(math.Round(s.Temperature)), s.Description, s.AQI, int(math.Round(s.UVIndex)))
}
