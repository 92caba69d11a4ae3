package mailer

import (
	"context"

	"github.com/smith3v/climatewatch-notifier/pkg/logger"
)

// LogTransport only logs what would have been sent.
type LogTransport struct{}

func (LogTransport) Name() string    { return "log" }
func (LogTransport) Simulated() bool { return true }

func (LogTransport) Send(ctx context.Context, p Payload) error {
	logger.Info("email service not configured, logging email instead of sending",
		"to", p.ToEmail,
		"user", p.UserName,
		"date", p.Date,
		"summary", p.Summary,
		"weather", p.WeatherData,
	)
	return nil
}
