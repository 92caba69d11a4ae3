package insights

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	codeFence    = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	bulletPrefix = regexp.MustCompile(`^(?:[-•*]|\d+[.)])\s*`)
)

// parseStructured accepts a bare JSON object, optionally wrapped in a markdown fence.
func parseStructured(text string) (HealthInsights, bool) {
	body := strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(body); m != nil {
		body = m[1]
	}
	if !strings.HasPrefix(body, "{") {
		return HealthInsights{}, false
	}
	var out HealthInsights
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return HealthInsights{}, false
	}
	if out.empty() {
		return HealthInsights{}, false
	}
	return out, true
}

func (h HealthInsights) empty() bool {
	return h.OverallRisk == "" && len(h.Recommendations) == 0 && len(h.HealthTips) == 0 &&
		h.AirQualityAdvice == "" && h.UVProtection == "" && h.ExerciseRecommendation == ""
}

// parseText scans free text for keyword-anchored sections. Any section it cannot
// find keeps the corresponding fallback value.
func parseText(text string, fallback HealthInsights) HealthInsights {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := HealthInsights{
		OverallRisk:            sectionText(lines, "overall"),
		Recommendations:        listItems(lines, "recommendation"),
		HealthTips:             listItems(lines, "tip"),
		AirQualityAdvice:       sectionText(lines, "air quality"),
		UVProtection:           sectionText(lines, "uv"),
		ExerciseRecommendation: sectionText(lines, "exercise"),
	}
	return fillMissing(out, fallback)
}

// sectionText joins every line mentioning keyword.
func sectionText(lines []string, keyword string) string {
	var parts []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && strings.Contains(strings.ToLower(trimmed), keyword) {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}

// listItems collects bullet lines following a line that mentions keyword, up to
// the first blank line after at least one item.
func listItems(lines []string, keyword string) []string {
	var items []string
	inSection := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.Contains(strings.ToLower(trimmed), keyword) {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}
		if trimmed == "" {
			if len(items) > 0 {
				break
			}
			continue
		}
		if loc := bulletPrefix.FindStringIndex(trimmed); loc != nil {
			if item := strings.TrimSpace(trimmed[loc[1]:]); item != "" {
				items = append(items, item)
			}
		}
	}
	return items
}
