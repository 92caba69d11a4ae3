// Package insights turns weather snapshots into health advice for notification emails.
package insights

import (
	"context"
	"time"

	"github.com/smith3v/climatewatch-notifier/pkg/logger"
	"github.com/smith3v/climatewatch-notifier/pkg/weather"
)

type HealthInsights struct {
	OverallRisk            string   `json:"overallRisk"`
	Recommendations        []string `json:"recommendations"`
	HealthTips             []string `json:"healthTips"`
	AirQualityAdvice       string   `json:"airQualityAdvice"`
	UVProtection           string   `json:"uvProtection"`
	ExerciseRecommendation string   `json:"exerciseRecommendation"`
}

// Source records which path produced a Result.
type Source string

const (
	SourceStructured      Source = "structured"
	SourceHeuristicParsed Source = "heuristic"
	SourceFallback        Source = "fallback"
)

type Result struct {
	Insights HealthInsights `json:"insights"`
	Source   Source         `json:"source"`
}

// TextGenerator sends a prompt to a generative-text service.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type Generator struct {
	text    TextGenerator
	timeout time.Duration
}

// NewGenerator builds a Generator. With a nil TextGenerator every call uses the
// local heuristics.
func NewGenerator(text TextGenerator, timeout time.Duration) *Generator {
	return &Generator{text: text, timeout: timeout}
}

// Generate never fails; errors from the text service degrade to the heuristics.
func (g *Generator) Generate(ctx context.Context, snapshots []weather.Snapshot) Result {
	fallback := Fallback(snapshots)
	if g == nil || g.text == nil {
		return Result{Insights: fallback, Source: SourceFallback}
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	text, err := g.text.GenerateText(callCtx, BuildPrompt(snapshots))
	if err != nil {
		logger.Warn("insight generation failed, using heuristics", "error", err)
		return Result{Insights: fallback, Source: SourceFallback}
	}

	if parsed, ok := parseStructured(text); ok {
		return Result{Insights: fillMissing(parsed, fallback), Source: SourceStructured}
	}
	logger.Debug("insight response was not JSON, scanning text")
	return Result{Insights: parseText(text, fallback), Source: SourceHeuristicParsed}
}

func fillMissing(in, fallback HealthInsights) HealthInsights {
	if in.OverallRisk == "" {
		in.OverallRisk = fallback.OverallRisk
	}
	if len(in.Recommendations) == 0 {
		in.Recommendations = fallback.Recommendations
	}
	if len(in.HealthTips) == 0 {
		in.HealthTips = fallback.HealthTips
	}
	if in.AirQualityAdvice == "" {
		in.AirQualityAdvice = fallback.AirQualityAdvice
	}
	if in.UVProtection == "" {
		in.UVProtection = fallback.UVProtection
	}
	if in.ExerciseRecommendation == "" {
		in.ExerciseRecommendation = fallback.ExerciseRecommendation
	}
	return in
}
