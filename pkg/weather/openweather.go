package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smith3v/climatewatch-notifier/pkg/logger"
	"github.com/sony/gobreaker"
)

const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5"

// OpenWeather fetches current conditions and air quality from OpenWeatherMap.
type OpenWeather struct {
	apiKey  string
	baseURL string
	client  HTTPDoer
	retry   RetryPolicy
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewOpenWeather(client HTTPDoer, apiKey, baseURL string) *OpenWeather {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultOpenWeatherURL
	}
	return &OpenWeather{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		retry: RetryPolicy{
			MaxRetries:      2,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     4 * time.Second,
		},
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openweather",
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
			IsSuccessful: func(err error) bool {
				// An unknown city is the caller's problem, not an outage.
				return err == nil || errors.Is(err, ErrBadStatus)
			},
		}),
		now: time.Now,
	}
}

type currentResponse struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"` // m/s
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Name string `json:"name"`
}

type airPollutionResponse struct {
	List []struct {
		Main struct {
			AQI int `json:"aqi"` // 1 (good) to 5 (very poor)
		} `json:"main"`
		Components struct {
			PM25 *float64 `json:"pm2_5"`
		} `json:"components"`
	} `json:"list"`
}

func (o *OpenWeather) Fetch(ctx context.Context, city string) (Snapshot, error) {
	if o.apiKey == "" {
		return Snapshot{}, ErrNoAPIKey
	}

	q := url.Values{}
	q.Set("q", city)
	q.Set("units", "metric")
	q.Set("appid", o.apiKey)

	var cur currentResponse
	if err := o.getJSON(ctx, o.baseURL+"/weather?"+q.Encode(), &cur); err != nil {
		err = fmt.Errorf("current weather for %s: %w", city, err)
		if snap, ok := o.knownCityFallback(ctx, city, err); ok {
			return snap, nil
		}
		return Snapshot{}, err
	}

	lat, lon := cur.Coord.Lat, cur.Coord.Lon
	if known, ok := LookupCity(city); ok {
		lat, lon = known.Lat, known.Lon
	}
	aqi, err := o.airQuality(ctx, lat, lon)
	if err != nil {
		logger.Warn("air quality unavailable, using estimate", "city", city, "error", err)
		aqi = MockSnapshot(city, o.now()).AQI
	}

	description := "unknown"
	if len(cur.Weather) > 0 && cur.Weather[0].Description != "" {
		description = cur.Weather[0].Description
	}

	return Snapshot{
		City:        city,
		Temperature: cur.Main.Temp,
		Humidity:    cur.Main.Humidity,
		Pressure:    cur.Main.Pressure,
		AQI:         aqi,
		UVIndex:     mockUV(city, o.now()),
		WindSpeed:   math.Round(cur.Wind.Speed * 3.6),
		Description: description,
		Risk:        ClassifyRisk(cur.Main.Temp, aqi),
		Source:      SourceOpenWeather,
	}, nil
}

// knownCityFallback keeps the live air quality for a known city when its
// current-weather call failed. Conditions come from the mock reading.
func (o *OpenWeather) knownCityFallback(ctx context.Context, city string, cause error) (Snapshot, bool) {
	known, ok := LookupCity(city)
	if !ok {
		return Snapshot{}, false
	}
	aqi, err := o.airQuality(ctx, known.Lat, known.Lon)
	if err != nil {
		return Snapshot{}, false
	}
	logger.Warn("current weather unavailable, using known coordinates for air quality", "city", city, "error", cause)
	snap := MockSnapshot(city, o.now())
	snap.AQI = aqi
	snap.Risk = ClassifyRisk(snap.Temperature, aqi)
	snap.Source = SourcePartial
	return snap, true
}

func (o *OpenWeather) airQuality(ctx context.Context, lat, lon float64) (int, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.4f", lat))
	q.Set("lon", fmt.Sprintf("%.4f", lon))
	q.Set("appid", o.apiKey)

	var resp airPollutionResponse
	if err := o.getJSON(ctx, o.baseURL+"/air_pollution?"+q.Encode(), &resp); err != nil {
		return 0, err
	}
	if len(resp.List) == 0 {
		return 0, errors.New("empty air pollution response")
	}
	item := resp.List[0]
	if item.Components.PM25 != nil {
		return AQIFromPM25(*item.Components.PM25), nil
	}
	return AQIFromIndex(item.Main.AQI), nil
}

func (o *OpenWeather) getJSON(ctx context.Context, u string, out any) error {
	resp, err := getWithRetry(ctx, o.client, o.circuit, o.retry, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type aqiBreakpoint struct {
	cLow, cHigh float64
	iLow, iHigh float64
}

// US EPA PM2.5 (24h) breakpoints.
var pm25Breakpoints = []aqiBreakpoint{
	{0.0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 350.4, 301, 400},
	{350.5, 500.4, 401, 500},
}

// AQIFromPM25 converts a PM2.5 concentration (µg/m³) to the US AQI scale.
func AQIFromPM25(c float64) int {
	if c <= 0 {
		return 0
	}
	c = math.Floor(c*10) / 10
	for _, bp := range pm25Breakpoints {
		if c <= bp.cHigh {
			if c < bp.cLow {
				c = bp.cLow
			}
			aqi := (bp.iHigh-bp.iLow)/(bp.cHigh-bp.cLow)*(c-bp.cLow) + bp.iLow
			return int(math.Round(aqi))
		}
	}
	return 500
}

// AQIFromIndex maps OpenWeather's 1-5 index to the midpoint of the matching US AQI band.
func AQIFromIndex(index int) int {
	switch index {
	case 1:
		return 25
	case 2:
		return 75
	case 3:
		return 125
	case 4:
		return 175
	case 5:
		return 250
	default:
		return 0
	}
}
