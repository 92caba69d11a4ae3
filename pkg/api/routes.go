// Package api exposes the notifier's admin HTTP API.
package api

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/smith3v/climatewatch-notifier/pkg/dispatch"
	"github.com/smith3v/climatewatch-notifier/pkg/emaillog"
	"github.com/smith3v/climatewatch-notifier/pkg/logger"
	"github.com/smith3v/climatewatch-notifier/pkg/preferences"
	"github.com/smith3v/climatewatch-notifier/pkg/scheduler"
	"github.com/smith3v/climatewatch-notifier/pkg/weather"
)

type PreferenceStore interface {
	Upsert(p preferences.Preference) error
	Remove(email string) error
	Get(email string) (preferences.Preference, bool, error)
	List() ([]preferences.Preference, error)
}

type LogStore interface {
	ListAll() ([]emaillog.Entry, error)
	ListSince(days int) ([]emaillog.Entry, error)
	Stats(days int) (emaillog.Stats, error)
	Export() ([]byte, error)
	ClearAll() error
	ClearOlderThan(days int) (int64, error)
}

type SchedulerControl interface {
	Status() (scheduler.Status, error)
	NextSendTime(email string) (time.Time, bool, error)
	SendTestEmails(ctx context.Context) ([]dispatch.Outcome, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) dispatch.Outcome
}

type Deps struct {
	Preferences PreferenceStore
	Logs        LogStore
	Scheduler   SchedulerControl
	Dispatcher  Dispatcher
}

// NewApp returns a fiber app with JSON error responses and panic recovery.
func NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "climatewatch-notifier",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				logger.Error("admin api request failed", "method", c.Method(), "path", c.Path(), "error", err)
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
	app.Use(recover.New())
	return app
}

func RegisterRoutes(app *fiber.App, deps Deps) {
	h := handlers{deps: deps}
	v1 := app.Group("/api/v1")

	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": "climatewatch-notifier"})
	})
	v1.Get("/cities", func(c *fiber.Ctx) error {
		return c.JSON(weather.KnownCities())
	})

	v1.Get("/preferences", h.listPreferences)
	v1.Put("/preferences", h.upsertPreference)
	v1.Get("/preferences/:email", h.getPreference)
	v1.Delete("/preferences/:email", h.deletePreference)
	v1.Get("/preferences/:email/next", h.nextSend)

	v1.Get("/logs", h.listLogs)
	v1.Get("/logs/stats", h.logStats)
	v1.Get("/logs/export", h.exportLogs)
	v1.Delete("/logs", h.purgeLogs)

	v1.Get("/scheduler/status", h.schedulerStatus)

	v1.Post("/emails/test", h.sendOne(emaillog.TypeTest))
	v1.Post("/emails/demo", h.sendOne(emaillog.TypeDemo))
	v1.Post("/emails/test-all", h.sendTestAll)
}

type handlers struct {
	deps Deps
}

func emailParam(c *fiber.Ctx) string {
	raw := c.Params("email")
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func internalError(msg string, err error) error {
	logger.Error(msg, "error", err)
	return fiber.NewError(fiber.StatusInternalServerError, msg)
}

func (h handlers) listPreferences(c *fiber.Ctx) error {
	prefs, err := h.deps.Preferences.List()
	if err != nil {
		return internalError("failed to list preferences", err)
	}
	return c.JSON(prefs)
}

func (h handlers) upsertPreference(c *fiber.Ctx) error {
	var req preferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if req.Enabled && len(req.Cities) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "at least one city is required when notifications are enabled")
	}
	p := req.toPreference()
	if err := h.deps.Preferences.Upsert(p); err != nil {
		if errors.Is(err, preferences.ErrEmptyEmail) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return internalError("failed to save preference", err)
	}
	saved, _, err := h.deps.Preferences.Get(p.Email)
	if err != nil {
		return internalError("failed to load preference", err)
	}
	logger.Info("preference saved", "email", saved.Email, "enabled", saved.Enabled, "time", saved.Time)
	return c.JSON(saved)
}

func (h handlers) getPreference(c *fiber.Ctx) error {
	p, ok, err := h.deps.Preferences.Get(emailParam(c))
	if err != nil {
		return internalError("failed to load preference", err)
	}
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "preference not found")
	}
	return c.JSON(p)
}

func (h handlers) deletePreference(c *fiber.Ctx) error {
	if err := h.deps.Preferences.Remove(emailParam(c)); err != nil {
		return internalError("failed to remove preference", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h handlers) nextSend(c *fiber.Ctx) error {
	next, ok, err := h.deps.Scheduler.NextSendTime(emailParam(c))
	if err != nil {
		return internalError("failed to compute next send time", err)
	}
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no upcoming email for this address")
	}
	return c.JSON(fiber.Map{"email": emailParam(c), "nextTime": next})
}

func (h handlers) listLogs(c *fiber.Ctx) error {
	var q logsQuery
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query parameters")
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var (
		entries []emaillog.Entry
		err     error
	)
	if q.Days > 0 {
		entries, err = h.deps.Logs.ListSince(q.Days)
	} else {
		entries, err = h.deps.Logs.ListAll()
	}
	if err != nil {
		return internalError("failed to list email log", err)
	}
	filtered := make([]emaillog.Entry, 0, len(entries))
	for _, e := range entries {
		if q.matches(e) {
			filtered = append(filtered, e)
		}
	}
	return c.JSON(filtered)
}

func (h handlers) logStats(c *fiber.Ctx) error {
	days := c.QueryInt("days", 0)
	if days < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "days must not be negative")
	}
	stats, err := h.deps.Logs.Stats(days)
	if err != nil {
		return internalError("failed to compute stats", err)
	}
	return c.JSON(stats)
}

func (h handlers) exportLogs(c *fiber.Ctx) error {
	data, err := h.deps.Logs.Export()
	if err != nil {
		return internalError("failed to export email log", err)
	}
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="email-logs-`+time.Now().Format("2006-01-02")+`.json"`)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return c.Send(data)
}

func (h handlers) purgeLogs(c *fiber.Ctx) error {
	var q purgeQuery
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query parameters")
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if !q.All && q.OlderThanDays < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "older_than_days must be at least 1, or pass all=true")
	}
	if q.All {
		if err := h.deps.Logs.ClearAll(); err != nil {
			return internalError("failed to clear email log", err)
		}
		logger.Warn("email log cleared")
		return c.JSON(fiber.Map{"cleared": true})
	}
	removed, err := h.deps.Logs.ClearOlderThan(q.OlderThanDays)
	if err != nil {
		return internalError("failed to purge email log", err)
	}
	return c.JSON(fiber.Map{"removed": removed})
}

func (h handlers) schedulerStatus(c *fiber.Ctx) error {
	st, err := h.deps.Scheduler.Status()
	if err != nil {
		return internalError("failed to read scheduler status", err)
	}
	return c.JSON(st)
}

func (h handlers) sendOne(typ emaillog.Type) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req sendRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if len(req.Cities) == 0 || req.Name == "" {
			p, ok, err := h.deps.Preferences.Get(req.Email)
			if err != nil {
				return internalError("failed to load preference", err)
			}
			if ok {
				if len(req.Cities) == 0 {
					req.Cities = p.Cities
				}
				if req.Name == "" {
					req.Name = p.Name
				}
			}
		}
		if len(req.Cities) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "cities are required for recipients without saved preferences")
		}

		out := h.deps.Dispatcher.Dispatch(c.UserContext(), dispatch.Request{
			Email:  req.Email,
			Name:   req.Name,
			Cities: req.Cities,
			Type:   typ,
		})
		status := fiber.StatusOK
		if !out.Success {
			status = fiber.StatusBadGateway
		}
		return c.Status(status).JSON(out)
	}
}

func (h handlers) sendTestAll(c *fiber.Ctx) error {
	outcomes, err := h.deps.Scheduler.SendTestEmails(c.UserContext())
	if err != nil {
		return internalError("failed to send test emails", err)
	}
	sent := 0
	for _, o := range outcomes {
		if o.Success {
			sent++
		}
	}
	return c.JSON(fiber.Map{
		"total":   len(outcomes),
		"sent":    sent,
		"failed":  len(outcomes) - sent,
		"results": outcomes,
	})
}
