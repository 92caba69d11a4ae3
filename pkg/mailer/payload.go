// Package mailer renders notification payloads and hands them to an email transport.
package mailer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	MaxFieldLength  = 1000
	placeholderText = "Information not available"
)

var ErrInvalidPayload = errors.New("invalid email payload")

var validate = validator.New()

// Payload is the flat set of template parameters sent to the email provider.
type Payload struct {
	ToEmail                string `json:"to_email" validate:"required,email"`
	UserName               string `json:"user_name" validate:"required,max=1000"`
	Date                   string `json:"date" validate:"required"`
	Summary                string `json:"summary" validate:"required,max=1000"`
	OverallRisk            string `json:"overall_risk" validate:"required,max=1000"`
	Recommendations        string `json:"recommendations" validate:"required,max=1000"`
	HealthTips             string `json:"health_tips" validate:"required,max=1000"`
	AirQualityAdvice       string `json:"air_quality_advice" validate:"required,max=1000"`
	UVProtection           string `json:"uv_protection" validate:"required,max=1000"`
	ExerciseRecommendation string `json:"exercise_recommendation" validate:"required,max=1000"`
	WeatherData            string `json:"weather_data" validate:"required,max=1000"`
}

func (p Payload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	for _, v := range p.TemplateParams() {
		if strings.ContainsAny(v, "{}") {
			return fmt.Errorf("%w: template braces in value", ErrInvalidPayload)
		}
	}
	return nil
}

// TemplateParams returns the payload keyed by template variable name.
func (p Payload) TemplateParams() map[string]string {
	return map[string]string{
		"to_email":                p.ToEmail,
		"user_name":               p.UserName,
		"date":                    p.Date,
		"summary":                 p.Summary,
		"overall_risk":            p.OverallRisk,
		"recommendations":         p.Recommendations,
		"health_tips":             p.HealthTips,
		"air_quality_advice":      p.AirQualityAdvice,
		"uv_protection":           p.UVProtection,
		"exercise_recommendation": p.ExerciseRecommendation,
		"weather_data":            p.WeatherData,
	}
}

// Sanitized returns a copy with every text field passed through Sanitize.
func (p Payload) Sanitized() Payload {
	return Payload{
		ToEmail:                strings.TrimSpace(p.ToEmail),
		UserName:               Sanitize(p.UserName),
		Date:                   Sanitize(p.Date),
		Summary:                Sanitize(p.Summary),
		OverallRisk:            Sanitize(p.OverallRisk),
		Recommendations:        Sanitize(p.Recommendations),
		HealthTips:             Sanitize(p.HealthTips),
		AirQualityAdvice:       Sanitize(p.AirQualityAdvice),
		UVProtection:           Sanitize(p.UVProtection),
		ExerciseRecommendation: Sanitize(p.ExerciseRecommendation),
		WeatherData:            Sanitize(p.WeatherData),
	}
}

var (
	braces      = regexp.MustCompile(`[{}]`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
	// Runs of two spaces are left alone; only three or more collapse.
	spaceRuns   = regexp.MustCompile(`[ \t\f\v]{3,}`)
	trailingWS  = regexp.MustCompile(`[ \t]+\n`)
	crlf        = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// Sanitize strips template braces, collapses whitespace runs and caps the length.
// Empty input becomes a placeholder sentence.
func Sanitize(text string) string {
	if strings.TrimSpace(text) == "" {
		return placeholderText
	}
	out := crlf.Replace(text)
	out = braces.ReplaceAllString(out, "")
	out = trailingWS.ReplaceAllString(out, "\n")
	out = newlineRuns.ReplaceAllString(out, "\n\n")
	out = spaceRuns.ReplaceAllString(out, " ")
	out = strings.TrimSpace(out)
	if out == "" {
		return placeholderText
	}
	if utf8.RuneCountInString(out) > MaxFieldLength {
		runes := []rune(out)
		out = strings.TrimSpace(string(runes[:MaxFieldLength]))
	}
	return out
}
