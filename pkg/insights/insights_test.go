package insights

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/smith3v/climatewatch-notifier/pkg/weather"
)

type stubText struct {
	text   string
	err    error
	prompt string
	calls  int
}

func (s *stubText) GenerateText(ctx context.Context, prompt string) (string, error) {
	s.calls++
	s.prompt = prompt
	return s.text, s.err
}

func hotSnapshots() []weather.Snapshot {
	return []weather.Snapshot{
		{City: "Delhi", Temperature: 41, Humidity: 30, AQI: 230, UVIndex: 9, WindSpeed: 12, Description: "hot and sunny"},
		{City: "Mumbai", Temperature: 33, Humidity: 80, AQI: 120, UVIndex: 7, WindSpeed: 18, Description: "warm and clear"},
	}
}

func mildSnapshots() []weather.Snapshot {
	return []weather.Snapshot{
		{City: "Pune", Temperature: 24, AQI: 40, UVIndex: 2, Description: "pleasant"},
	}
}

func TestFallbackIsDeterministic(t *testing.T) {
	g := NewGenerator(nil, 0)
	first := g.Generate(context.Background(), hotSnapshots())
	second := g.Generate(context.Background(), hotSnapshots())

	if first.Source != SourceFallback {
		t.Fatalf("expected fallback source, got %s", first.Source)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("fallback results differ:\n%+v\n%+v", first, second)
	}
}

func TestFallbackThresholds(t *testing.T) {
	hot := Fallback(hotSnapshots())
	if !strings.HasPrefix(hot.OverallRisk, "High risk day") {
		t.Fatalf("unexpected overall risk %q", hot.OverallRisk)
	}
	// Average temperature is 37, max AQI 230.
	wantRecs := []string{
		"Stay hydrated - drink water every 30 minutes",
		"Avoid outdoor activities during 11 AM - 4 PM",
		"Wear N95 masks when outdoors",
		"Keep windows closed and use air purifiers indoors",
		"Monitor elderly and children for heat-related symptoms",
	}
	if !reflect.DeepEqual(hot.Recommendations, wantRecs) {
		t.Fatalf("unexpected recommendations %v", hot.Recommendations)
	}
	if !strings.HasPrefix(hot.AirQualityAdvice, "Very unhealthy air quality") {
		t.Fatalf("unexpected air quality advice %q", hot.AirQualityAdvice)
	}
	if !strings.HasPrefix(hot.UVProtection, "Very high UV levels") {
		t.Fatalf("unexpected uv advice %q", hot.UVProtection)
	}
	if !strings.HasPrefix(hot.ExerciseRecommendation, "Exercise indoors today") {
		t.Fatalf("unexpected exercise advice %q", hot.ExerciseRecommendation)
	}
	if len(hot.HealthTips) != 4 {
		t.Fatalf("expected 4 fixed tips, got %d", len(hot.HealthTips))
	}

	mild := Fallback(mildSnapshots())
	if !strings.HasPrefix(mild.OverallRisk, "Low to moderate risk") {
		t.Fatalf("unexpected overall risk %q", mild.OverallRisk)
	}
	if len(mild.Recommendations) != 1 {
		t.Fatalf("expected only the constant recommendation, got %v", mild.Recommendations)
	}
	if !strings.HasPrefix(mild.AirQualityAdvice, "Good air quality") || !strings.HasPrefix(mild.UVProtection, "Low UV levels") {
		t.Fatalf("unexpected mild advice %+v", mild)
	}
	if !strings.HasPrefix(mild.ExerciseRecommendation, "Good conditions for outdoor exercise") {
		t.Fatalf("unexpected exercise advice %q", mild.ExerciseRecommendation)
	}
}

func TestOverallRiskUsesHottestCity(t *testing.T) {
	snaps := []weather.Snapshot{
		{City: "Delhi", Temperature: 36, AQI: 60, UVIndex: 3},
		{City: "Pune", Temperature: 24, AQI: 40, UVIndex: 2},
	}
	got := Fallback(snaps)
	if !strings.HasPrefix(got.OverallRisk, "Moderate risk") {
		t.Fatalf("expected moderate risk from a single hot city, got %q", got.OverallRisk)
	}
}

func TestAdviceTiers(t *testing.T) {
	aqi := map[int]string{201: "Very unhealthy", 101: "Unhealthy for sensitive", 51: "Moderate air", 50: "Good air"}
	for value, prefix := range aqi {
		if got := AirQualityAdvice(value); !strings.HasPrefix(got, prefix) {
			t.Errorf("AirQualityAdvice(%d) = %q", value, got)
		}
	}
	uv := map[float64]string{9: "Very high", 7: "High UV", 4: "Moderate UV", 3: "Low UV"}
	for value, prefix := range uv {
		if got := UVAdvice(value); !strings.HasPrefix(got, prefix) {
			t.Errorf("UVAdvice(%v) = %q", value, got)
		}
	}
}

func TestFallbackEmptyInput(t *testing.T) {
	got := Fallback(nil)
	if !strings.HasPrefix(got.OverallRisk, "Low to moderate risk") {
		t.Fatalf("unexpected overall risk for no data %q", got.OverallRisk)
	}
}

func TestGenerateStructured(t *testing.T) {
	stub := &stubText{text: "```json\n" + `{
		"overallRisk": "Moderate heat stress",
		"recommendations": ["Carry water"],
		"healthTips": ["Sleep early"],
		"airQualityAdvice": "Masks advised",
		"uvProtection": "Use sunscreen",
		"exerciseRecommendation": "Indoor yoga"
	}` + "\n```"}
	g := NewGenerator(stub, time.Second)

	res := g.Generate(context.Background(), hotSnapshots())
	if res.Source != SourceStructured {
		t.Fatalf("expected structured source, got %s", res.Source)
	}
	if res.Insights.OverallRisk != "Moderate heat stress" || res.Insights.ExerciseRecommendation != "Indoor yoga" {
		t.Fatalf("unexpected insights %+v", res.Insights)
	}
	if !strings.Contains(stub.prompt, "City: Delhi") || !strings.Contains(stub.prompt, "Air Quality Index: 230") {
		t.Fatalf("prompt missing snapshot data:\n%s", stub.prompt)
	}
}

func TestGenerateStructuredFillsMissingFields(t *testing.T) {
	stub := &stubText{text: `{"overallRisk": "Elevated"}`}
	res := NewGenerator(stub, 0).Generate(context.Background(), hotSnapshots())
	if res.Source != SourceStructured {
		t.Fatalf("expected structured source, got %s", res.Source)
	}
	fallback := Fallback(hotSnapshots())
	if res.Insights.OverallRisk != "Elevated" || res.Insights.UVProtection != fallback.UVProtection {
		t.Fatalf("expected missing fields from fallback, got %+v", res.Insights)
	}
}

func TestGenerateHeuristicText(t *testing.T) {
	stub := &stubText{text: `Overall risk: High for outdoor workers.

Recommendations:
- Drink water regularly
• Avoid noon sun
3. Check on neighbours

Health tips for today:
1) Wear cotton
- Eat fruit

Air quality is poor near traffic.
UV exposure is strong after 11.
Exercise indoors if possible.`}
	res := NewGenerator(stub, 0).Generate(context.Background(), hotSnapshots())

	if res.Source != SourceHeuristicParsed {
		t.Fatalf("expected heuristic source, got %s", res.Source)
	}
	in := res.Insights
	if in.OverallRisk != "Overall risk: High for outdoor workers." {
		t.Fatalf("unexpected overall risk %q", in.OverallRisk)
	}
	wantRecs := []string{"Drink water regularly", "Avoid noon sun", "Check on neighbours"}
	if !reflect.DeepEqual(in.Recommendations, wantRecs) {
		t.Fatalf("unexpected recommendations %v", in.Recommendations)
	}
	if !reflect.DeepEqual(in.HealthTips, []string{"Wear cotton", "Eat fruit"}) {
		t.Fatalf("unexpected tips %v", in.HealthTips)
	}
	if in.AirQualityAdvice != "Air quality is poor near traffic." {
		t.Fatalf("unexpected air quality %q", in.AirQualityAdvice)
	}
	if in.UVProtection != "UV exposure is strong after 11." {
		t.Fatalf("unexpected uv %q", in.UVProtection)
	}
	if in.ExerciseRecommendation != "Exercise indoors if possible." {
		t.Fatalf("unexpected exercise %q", in.ExerciseRecommendation)
	}
}

func TestGenerateHeuristicTextWithoutSections(t *testing.T) {
	stub := &stubText{text: "Stay safe out there."}
	res := NewGenerator(stub, 0).Generate(context.Background(), mildSnapshots())
	if res.Source != SourceHeuristicParsed {
		t.Fatalf("expected heuristic source, got %s", res.Source)
	}
	if !reflect.DeepEqual(res.Insights, Fallback(mildSnapshots())) {
		t.Fatalf("expected every field from fallback, got %+v", res.Insights)
	}
}

func TestGenerateErrorFallsBack(t *testing.T) {
	stub := &stubText{err: errors.New("quota exceeded")}
	res := NewGenerator(stub, 0).Generate(context.Background(), hotSnapshots())
	if res.Source != SourceFallback {
		t.Fatalf("expected fallback source, got %s", res.Source)
	}
	if stub.calls != 1 {
		t.Fatalf("expected one call, got %d", stub.calls)
	}
	if !reflect.DeepEqual(res.Insights, Fallback(hotSnapshots())) {
		t.Fatal("expected fallback insights on error")
	}
}
