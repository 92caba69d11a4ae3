package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smith3v/climatewatch-notifier/pkg/alerts"
	"github.com/smith3v/climatewatch-notifier/pkg/api"
	"github.com/smith3v/climatewatch-notifier/pkg/archive"
	"github.com/smith3v/climatewatch-notifier/pkg/claims"
	"github.com/smith3v/climatewatch-notifier/pkg/config"
	"github.com/smith3v/climatewatch-notifier/pkg/db"
	"github.com/smith3v/climatewatch-notifier/pkg/dispatch"
	"github.com/smith3v/climatewatch-notifier/pkg/emaillog"
	"github.com/smith3v/climatewatch-notifier/pkg/housekeeping"
	"github.com/smith3v/climatewatch-notifier/pkg/insights"
	"github.com/smith3v/climatewatch-notifier/pkg/logger"
	"github.com/smith3v/climatewatch-notifier/pkg/mailer"
	"github.com/smith3v/climatewatch-notifier/pkg/preferences"
	"github.com/smith3v/climatewatch-notifier/pkg/scheduler"
	"github.com/smith3v/climatewatch-notifier/pkg/weather"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	importPath := flag.String("import-preferences", "", "import preferences from a JSON file and exit")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.AppConfig
	if err := logger.Configure(logger.Options{
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
		Format: cfg.Logging.Format,
	}); err != nil {
		logger.Error("failed to configure logger", "error", err)
	}

	if err := db.InitDB(cfg.Database); err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}

	prefs := preferences.NewStore(db.DB)
	if *importPath != "" {
		os.Exit(importPreferences(prefs, *importPath))
	}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		logger.Error("falling back to host timezone", "error", err)
	}
	logs := emaillog.NewStore(db.DB, emaillog.Options{MaxEntries: cfg.Logs.MaxEntries, Location: loc})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	callTimeout := cfg.Scheduler.CallTimeout.Duration
	httpClient := &http.Client{Timeout: callTimeout}

	var provider weather.Provider
	if cfg.Weather.APIKey != "" {
		provider = weather.NewOpenWeather(httpClient, cfg.Weather.APIKey, cfg.Weather.BaseURL)
	} else {
		logger.Info("no weather API key configured, using mock readings")
	}

	var text insights.TextGenerator
	if cfg.Gemini.APIKey != "" {
		g, err := insights.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			logger.Error("failed to create Gemini client, using heuristic insights", "error", err)
		} else {
			defer g.Close()
			text = g
		}
	}

	transport := mailer.NewTransport(cfg.Email)
	if transport.Simulated() {
		logger.Warn("email service not configured, emails will only be logged")
	}

	dispatcher := dispatch.New(dispatch.Deps{
		Log:       logs,
		Weather:   weather.NewService(provider, callTimeout, nil),
		Insights:  insights.NewGenerator(text, callTimeout),
		Transport: transport,
		Alerts:    newNotifier(cfg.Telegram),
		Timeout:   callTimeout,
		Location:  loc,
	})

	claimStore, closeClaims := newClaimStore(ctx, cfg.Redis)
	defer closeClaims()

	sched := scheduler.New(prefs, logs, dispatcher, scheduler.Options{
		Interval:  cfg.Scheduler.Interval.Duration,
		SendDelay: cfg.Scheduler.SendDelay.Duration,
		Location:  loc,
		Claims:    claimStore,
	})

	janitor := housekeeping.New(logs, housekeeping.Options{
		RetentionDays: cfg.Logs.RetentionDays,
		CleanupAt:     cfg.Logs.CleanupAt,
		Location:      loc,
		Archiver:      newArchiver(ctx, cfg.Archive),
	})

	app := api.NewApp()
	api.RegisterRoutes(app, api.Deps{
		Preferences: prefs,
		Logs:        logs,
		Scheduler:   sched,
		Dispatcher:  dispatcher,
	})

	sched.Start(ctx)
	defer sched.Stop()
	if err := janitor.Start(); err != nil {
		logger.Error("failed to schedule housekeeping", "error", err)
	}
	defer janitor.Stop()

	go func() {
		logger.Info("admin API listening", "addr", cfg.HTTP.Addr)
		if err := app.Listen(cfg.HTTP.Addr); err != nil {
			logger.Error("admin API stopped", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during API shutdown", "error", err)
	}
}

func importPreferences(prefs *preferences.Store, path string) int {
	f, err := os.Open(path)
	if err != nil {
		logger.Error("failed to open preferences file", "path", path, "error", err)
		return 1
	}
	defer f.Close()
	n, err := prefs.ImportJSON(f)
	if err != nil {
		logger.Error("failed to import preferences", "path", path, "error", err)
		return 1
	}
	logger.Info("imported preferences", "count", n, "path", path)
	return 0
}

func newNotifier(cfg config.TelegramConfig) alerts.Notifier {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return alerts.Nop{}
	}
	b, err := alerts.NewBot(cfg.Token)
	if err != nil {
		logger.Error("failed to create telegram client, alerts disabled", "error", err)
		return alerts.Nop{}
	}
	return alerts.NewTelegram(b, cfg.ChatID)
}

func newClaimStore(ctx context.Context, cfg config.RedisConfig) (claims.Store, func()) {
	if cfg.Addr == "" {
		return claims.NewMemoryStore(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, claims will fall back to the delivery log", "addr", cfg.Addr, "error", err)
	}
	owner, _ := os.Hostname()
	return claims.NewRedisStore(client, cfg.ClaimTTL.Duration, owner), func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close redis client", "error", err)
		}
	}
}

func newArchiver(ctx context.Context, cfg config.ArchiveConfig) archive.Archiver {
	if cfg.Bucket == "" {
		return nil
	}
	a, err := archive.NewS3Archiver(ctx, cfg)
	if err != nil {
		logger.Error("failed to create archive client, old log entries will not be archived", "error", err)
		return nil
	}
	return a
}
