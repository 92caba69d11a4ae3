package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/smith3v/climatewatch-notifier/pkg/config"
)

func validPayload() Payload {
	return Payload{
		ToEmail:                "a@x.com",
		UserName:               "Asha",
		Date:                   "Tuesday, 14 January 2025",
		Summary:                "Today's weather summary for Mumbai: Moderate risk",
		OverallRisk:            "Moderate risk",
		Recommendations:        "Carry water\n• Wear a hat",
		HealthTips:             "Sleep early",
		AirQualityAdvice:       "Moderate air quality.",
		UVProtection:           "High UV levels.",
		ExerciseRecommendation: "Exercise early morning.",
		WeatherData:            "Mumbai: 32°C, warm and clear, AQI: 120, UV: 7",
	}
}

func TestSanitizeStripsBracesAndNewlineRuns(t *testing.T) {
	in := "Hello {{name}}\n\n\n\n\nStay {safe}   today"
	got := Sanitize(in)
	if strings.ContainsAny(got, "{}") {
		t.Fatalf("braces survived: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Fatalf("run of more than two newlines survived: %q", got)
	}
	if got != "Hello name\n\nStay safe today" {
		t.Fatalf("unexpected sanitized text %q", got)
	}
}

func TestSanitizeEmptyAndLength(t *testing.T) {
	if got := Sanitize("   \n "); got != placeholderText {
		t.Fatalf("expected placeholder, got %q", got)
	}
	if got := Sanitize("{}"); got != placeholderText {
		t.Fatalf("expected placeholder for braces only, got %q", got)
	}
	long := strings.Repeat("é", MaxFieldLength+50)
	got := Sanitize(long)
	if utf8.RuneCountInString(got) != MaxFieldLength || !utf8.ValidString(got) {
		t.Fatalf("expected %d valid runes, got %d", MaxFieldLength, utf8.RuneCountInString(got))
	}
}

func TestPayloadValidate(t *testing.T) {
	if err := validPayload().Validate(); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}

	bad := validPayload()
	bad.ToEmail = "not-an-email"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for bad email, got %v", err)
	}

	bad = validPayload()
	bad.Summary = "{{oops}}"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for braces, got %v", err)
	}

	bad = validPayload()
	bad.HealthTips = ""
	if err := bad.Validate(); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for missing field, got %v", err)
	}
	if err := bad.Sanitized().Validate(); err != nil {
		t.Fatalf("sanitized payload should be valid, got %v", err)
	}
}

func TestEmailJSSend(t *testing.T) {
	var got emailJSRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	tr := NewEmailJS(srv.Client(), config.EmailJSConfig{
		ServiceID:  "svc",
		TemplateID: "tpl",
		PublicKey:  "pub",
		PrivateKey: "priv",
		Endpoint:   srv.URL,
	})
	if err := tr.Send(context.Background(), validPayload()); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if got.ServiceID != "svc" || got.TemplateID != "tpl" || got.UserID != "pub" || got.AccessToken != "priv" {
		t.Fatalf("unexpected request ids %+v", got)
	}
	if got.TemplateParams["to_email"] != "a@x.com" || got.TemplateParams["weather_data"] == "" {
		t.Fatalf("unexpected template params %v", got.TemplateParams)
	}
}

func TestEmailJSNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("The template ID is invalid"))
	}))
	defer srv.Close()

	tr := NewEmailJS(srv.Client(), config.EmailJSConfig{ServiceID: "svc", TemplateID: "bad", PublicKey: "pub", Endpoint: srv.URL})
	err := tr.Send(context.Background(), validPayload())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusBadRequest || !strings.Contains(se.Error(), "template ID is invalid") {
		t.Fatalf("unexpected status error %v", se)
	}
	if !IsStatusError(err) {
		t.Fatal("IsStatusError should report true")
	}
}

func TestSMTPBuildMessage(t *testing.T) {
	s := NewSMTP(config.SMTPConfig{Host: "smtp.example.com", From: "alerts@example.com", FromName: "ClimateWatch"})
	msg, err := s.buildMessage(validPayload())
	if err != nil {
		t.Fatalf("buildMessage returned error: %v", err)
	}
	text := string(msg)
	for _, want := range []string{
		"To: a@x.com\r\n",
		"Content-Type: text/plain; charset=UTF-8",
		"Hello Asha,",
		"• Carry water\r\n• Wear a hat",
		"Mumbai: 32°C, warm and clear, AQI: 120, UV: 7",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("message missing %q:\n%s", want, text)
		}
	}
	if s.cfg.Port != 587 {
		t.Fatalf("expected default port 587, got %d", s.cfg.Port)
	}
}

func TestNewTransport(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.EmailConfig
		want string
	}{
		{"emailjs configured", config.EmailConfig{Mode: "emailjs", EmailJS: config.EmailJSConfig{ServiceID: "s", TemplateID: "t", PublicKey: "p"}}, "emailjs"},
		{"emailjs missing credentials", config.EmailConfig{Mode: "emailjs", EmailJS: config.EmailJSConfig{ServiceID: "s"}}, "log"},
		{"smtp configured", config.EmailConfig{Mode: "smtp", SMTP: config.SMTPConfig{Host: "h", From: "f@x.com"}}, "smtp"},
		{"smtp missing host", config.EmailConfig{Mode: "smtp"}, "log"},
		{"explicit log", config.EmailConfig{Mode: "log"}, "log"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := NewTransport(tc.cfg)
			if tr.Name() != tc.want {
				t.Fatalf("expected %s transport, got %s", tc.want, tr.Name())
			}
			if tr.Simulated() != (tc.want == "log") {
				t.Fatalf("unexpected Simulated() for %s", tc.want)
			}
		})
	}
}
