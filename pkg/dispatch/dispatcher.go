// Package dispatch renders and sends one notification email and records the outcome.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smith3v/climatewatch-notifier/pkg/alerts"
	"github.com/smith3v/climatewatch-notifier/pkg/emaillog"
	"github.com/smith3v/climatewatch-notifier/pkg/insights"
	"github.com/smith3v/climatewatch-notifier/pkg/logger"
	"github.com/smith3v/climatewatch-notifier/pkg/mailer"
	"github.com/smith3v/climatewatch-notifier/pkg/weather"
)

const dateLayout = "Monday, 2 January 2006"

type Request struct {
	Email  string
	Name   string
	Cities []string
	Type   emaillog.Type
}

// Outcome is the result of one dispatch. LogID is empty when the attempt could
// not be recorded.
type Outcome struct {
	LogID   string             `json:"logId,omitempty"`
	Email   string             `json:"email"`
	Success bool               `json:"success"`
	Kind    emaillog.ErrorKind `json:"errorKind,omitempty"`
	Error   string             `json:"error,omitempty"`
}

type AttemptLog interface {
	LogAttempt(email, name string, typ emaillog.Type, cities []string) (string, error)
	Update(id string, patch emaillog.Patch) error
}

type WeatherSource interface {
	Snapshots(ctx context.Context, cities []string) []weather.Snapshot
}

type InsightSource interface {
	Generate(ctx context.Context, snapshots []weather.Snapshot) insights.Result
}

type Deps struct {
	Log       AttemptLog
	Weather   WeatherSource
	Insights  InsightSource
	Transport mailer.Transport
	Alerts    alerts.Notifier
	// Timeout bounds the transport call. Zero means no extra deadline.
	Timeout  time.Duration
	Now      func() time.Time
	Location *time.Location
}

type Dispatcher struct {
	log       AttemptLog
	weather   WeatherSource
	insights  InsightSource
	transport mailer.Transport
	alerts    alerts.Notifier
	timeout   time.Duration
	now       func() time.Time
	loc       *time.Location
}

func New(deps Deps) *Dispatcher {
	d := &Dispatcher{
		log:       deps.Log,
		weather:   deps.Weather,
		insights:  deps.Insights,
		transport: deps.Transport,
		alerts:    deps.Alerts,
		timeout:   deps.Timeout,
		now:       deps.Now,
		loc:       deps.Location,
	}
	if d.weather == nil {
		d.weather = weather.NewService(nil, 0, deps.Now)
	}
	if d.insights == nil {
		d.insights = insights.NewGenerator(nil, 0)
	}
	if d.transport == nil {
		d.transport = mailer.LogTransport{}
	}
	if d.alerts == nil {
		d.alerts = alerts.Nop{}
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.loc == nil {
		d.loc = time.Local
	}
	return d
}

// Send reports whether the email was delivered (or logged in simulated mode).
func (d *Dispatcher) Send(ctx context.Context, req Request) bool {
	return d.Dispatch(ctx, req).Success
}

// Dispatch runs one attempt end to end. It never returns an error; failures are
// written to the delivery log and reported in the Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Outcome {
	if req.Type == "" {
		req.Type = emaillog.TypeDaily
	}
	out := Outcome{Email: req.Email}
	start := d.now()

	id, err := d.log.LogAttempt(req.Email, req.Name, req.Type, req.Cities)
	if err != nil {
		logger.Error("failed to record email attempt", "email", req.Email, "error", err)
		out.Kind = emaillog.ErrorInternal
		out.Error = err.Error()
		d.alerts.NotifyFailure(ctx, alerts.Failure{Email: req.Email, Type: req.Type, Kind: out.Kind, Error: out.Error})
		return out
	}
	out.LogID = id

	snapshots := d.weather.Snapshots(ctx, req.Cities)
	result := d.insights.Generate(ctx, snapshots)
	payload := RenderPayload(req, snapshots, result.Insights, start.In(d.loc))

	if err := payload.Validate(); err != nil {
		return d.fail(ctx, req, out, start, emaillog.ErrorInvalidPayload, err)
	}

	if err := d.deliver(ctx, payload); err != nil {
		return d.fail(ctx, req, out, start, classify(err), err)
	}

	elapsed := d.elapsedMs(start)
	patch := emaillog.Patch{
		Status:         emaillog.StatusSent,
		Transport:      d.transport.Name(),
		DeliveryTimeMs: &elapsed,
	}
	if raw, err := json.Marshal(payload); err == nil {
		patch.Payload = raw
	}
	if err := d.log.Update(id, patch); err != nil {
		logger.Error("failed to mark email as sent", "id", id, "email", req.Email, "error", err)
	}
	logger.Info("email sent",
		"id", id,
		"email", req.Email,
		"type", req.Type,
		"transport", d.transport.Name(),
		"insights", result.Source,
		"delivery_ms", elapsed,
	)
	out.Success = true
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, payload mailer.Payload) error {
	if d.timeout <= 0 {
		return d.transport.Send(ctx, payload)
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.transport.Send(callCtx, payload)
}

func (d *Dispatcher) fail(ctx context.Context, req Request, out Outcome, start time.Time, kind emaillog.ErrorKind, cause error) Outcome {
	elapsed := d.elapsedMs(start)
	out.Kind = kind
	out.Error = cause.Error()
	err := d.log.Update(out.LogID, emaillog.Patch{
		Status:         emaillog.StatusFailed,
		Error:          out.Error,
		ErrorKind:      kind,
		Transport:      d.transport.Name(),
		DeliveryTimeMs: &elapsed,
	})
	if err != nil {
		logger.Error("failed to mark email as failed", "id", out.LogID, "email", req.Email, "error", err)
	}
	logger.Error("email send failed", "id", out.LogID, "email", req.Email, "type", req.Type, "kind", kind, "error", cause)
	d.alerts.NotifyFailure(ctx, alerts.Failure{
		LogID: out.LogID,
		Email: req.Email,
		Type:  req.Type,
		Kind:  kind,
		Error: out.Error,
	})
	return out
}

func (d *Dispatcher) elapsedMs(start time.Time) int64 {
	ms := d.now().Sub(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

func classify(err error) emaillog.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return emaillog.ErrorTimeout
	case mailer.IsStatusError(err):
		return emaillog.ErrorUpstreamStatus
	case errors.Is(err, mailer.ErrInvalidPayload):
		return emaillog.ErrorInvalidPayload
	default:
		return emaillog.ErrorTransport
	}
}

// RenderPayload flattens snapshots and insights into the sanitized template payload.
func RenderPayload(req Request, snapshots []weather.Snapshot, in insights.HealthInsights, now time.Time) mailer.Payload {
	lines := make([]string, 0, len(snapshots))
	for _, s := range snapshots {
		lines = append(lines, s.SummaryLine())
	}
	p := mailer.Payload{
		ToEmail:                req.Email,
		UserName:               displayName(req),
		Date:                   now.Format(dateLayout),
		Summary:                fmt.Sprintf("Today's weather summary for %s: %s", strings.Join(req.Cities, ", "), in.OverallRisk),
		OverallRisk:            in.OverallRisk,
		Recommendations:        strings.Join(in.Recommendations, "\n• "),
		HealthTips:             strings.Join(in.HealthTips, "\n• "),
		AirQualityAdvice:       in.AirQualityAdvice,
		UVProtection:           in.UVProtection,
		ExerciseRecommendation: in.ExerciseRecommendation,
		WeatherData:            strings.Join(lines, "\n"),
	}
	return p.Sanitized()
}

func displayName(req Request) string {
	if name := strings.TrimSpace(req.Name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(req.Email, "@")
	if local == "" {
		return "there"
	}
	return local
}
