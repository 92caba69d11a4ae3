package weather

import (
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"
)

var baseTemperatures = map[string]float64{
	"mumbai": 32,
	"delhi":  35,
}

const defaultBaseTemperature = 30

// MockSnapshot generates a bounded pseudo-random reading for city. Values are
// stable for a given city and calendar day.
func MockSnapshot(city string, day time.Time) Snapshot {
	rng := rand.New(rand.NewPCG(seedFor(city, day), 0x9e3779b97f4a7c15))

	base, ok := baseTemperatures[strings.ToLower(strings.TrimSpace(city))]
	if !ok {
		base = defaultBaseTemperature
	}
	temp := base + float64(rng.IntN(8)) - 4
	aqi := 50 + rng.IntN(200)

	return Snapshot{
		City:        city,
		Temperature: temp,
		Humidity:    float64(60 + rng.IntN(40)),
		Pressure:    float64(1000 + rng.IntN(50)),
		AQI:         aqi,
		UVIndex:     float64(1 + rng.IntN(10)),
		WindSpeed:   float64(5 + rng.IntN(20)),
		Description: describeTemperature(temp),
		Risk:        ClassifyRisk(temp, aqi),
		Source:      SourceMock,
	}
}

// mockUV fills the UV index, which the free OpenWeather endpoints do not report.
func mockUV(city string, day time.Time) float64 {
	return MockSnapshot(city, day).UVIndex
}

func seedFor(city string, day time.Time) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(city))))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(day.Format("2006-01-02")))
	return h.Sum64()
}

func describeTemperature(temp float64) string {
	switch {
	case temp > 35:
		return "hot and sunny"
	case temp > 25:
		return "warm and clear"
	default:
		return "pleasant"
	}
}
