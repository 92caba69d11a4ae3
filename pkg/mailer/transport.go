package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smith3v/climatewatch-notifier/pkg/config"
)

// Transport delivers a rendered payload.
type Transport interface {
	Name() string
	Send(ctx context.Context, p Payload) error
	// Simulated reports whether Send skips the network entirely.
	Simulated() bool
}

// StatusError is returned when the provider answers with a non-success status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("email provider returned status %d", e.Code)
	}
	return fmt.Sprintf("email provider returned status %d: %s", e.Code, body)
}

func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// NewTransport picks the transport for cfg. Missing credentials select the
// log-only transport.
func NewTransport(cfg config.EmailConfig) Transport {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "smtp":
		if cfg.SMTP.Host != "" && cfg.SMTP.From != "" {
			return NewSMTP(cfg.SMTP)
		}
	case "log":
		return LogTransport{}
	default:
		if cfg.EmailJS.ServiceID != "" && cfg.EmailJS.TemplateID != "" && cfg.EmailJS.PublicKey != "" {
			return NewEmailJS(nil, cfg.EmailJS)
		}
	}
	return LogTransport{}
}
