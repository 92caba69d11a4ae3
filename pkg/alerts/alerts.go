// Package alerts tells operators about notification delivery failures.
package alerts

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/smith3v/climatewatch-notifier/pkg/emaillog"
	"github.com/smith3v/climatewatch-notifier/pkg/logger"
)

type Failure struct {
	LogID string
	Email string
	Type  emaillog.Type
	Kind  emaillog.ErrorKind
	Error string
}

type Notifier interface {
	NotifyFailure(ctx context.Context, f Failure)
}

// Nop discards alerts.
type Nop struct{}

func (Nop) NotifyFailure(context.Context, Failure) {}

// MessageSender is the part of the Telegram client used for alerts.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type botSender struct {
	b *bot.Bot
}

func (s botSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := s.b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	return err
}

// Telegram posts failure alerts to a chat.
type Telegram struct {
	sender MessageSender
	chatID int64
}

// NewTelegram builds a Telegram notifier on top of an existing bot client.
func NewTelegram(b *bot.Bot, chatID int64) *Telegram {
	return &Telegram{sender: botSender{b: b}, chatID: chatID}
}

// NewTelegramWithSender is used when the caller already has a sender.
func NewTelegramWithSender(sender MessageSender, chatID int64) *Telegram {
	return &Telegram{sender: sender, chatID: chatID}
}

// NewBot creates a send-only Telegram client. Options are passed through so
// tests can inject an HTTP client.
func NewBot(token string, opts ...bot.Option) (*bot.Bot, error) {
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	return bot.New(token, opts...)
}

func (t *Telegram) NotifyFailure(ctx context.Context, f Failure) {
	if t == nil || t.sender == nil || t.chatID == 0 {
		return
	}
	if err := t.sender.SendMessage(ctx, t.chatID, FormatFailure(f)); err != nil {
		logger.Error("failed to send telegram alert", "email", f.Email, "error", err)
	}
}

const maxErrorRunes = 300

func FormatFailure(f Failure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ClimateWatch: %s email to %s failed", f.Type, f.Email)
	if f.Kind != emaillog.ErrorNone {
		fmt.Fprintf(&b, " (%s)", f.Kind)
	}
	if msg := strings.TrimSpace(f.Error); msg != "" {
		if r := []rune(msg); len(r) > maxErrorRunes {
			msg = string(r[:maxErrorRunes]) + "..."
		}
		fmt.Fprintf(&b, "\n%s", msg)
	}
	if f.LogID != "" {
		fmt.Fprintf(&b, "\nlog id: %s", f.LogID)
	}
	return b.String()
}
