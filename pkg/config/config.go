package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smith3v/climatewatch-notifier/pkg/logger"
)

type Config struct {
	Database  DatabaseConfig  `json:"database"`
	Logging   LoggingConfig   `json:"logging"`
	Weather   WeatherConfig   `json:"weather"`
	Gemini    GeminiConfig    `json:"gemini"`
	Email     EmailConfig     `json:"email"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logs      LogsConfig      `json:"logs"`
	HTTP      HTTPConfig      `json:"http"`
	Telegram  TelegramConfig  `json:"telegram"`
	Redis     RedisConfig     `json:"redis"`
	Archive   ArchiveConfig   `json:"archive"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver   string `json:"driver"`
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	Port     int    `json:"port"`
	SSLMode  string `json:"sslmode"`
}

type LoggingConfig struct {
	Level     string `json:"level"`
	File      string `json:"file"`
	Format    string `json:"format"`
	GormLevel string `json:"gorm_level"`
}

type WeatherConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type GeminiConfig struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

type EmailConfig struct {
	// Mode is "emailjs", "smtp" or "log".
	Mode    string        `json:"mode"`
	EmailJS EmailJSConfig `json:"emailjs"`
	SMTP    SMTPConfig    `json:"smtp"`
}

type EmailJSConfig struct {
	ServiceID  string `json:"service_id"`
	TemplateID string `json:"template_id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	Endpoint   string `json:"endpoint"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	From     string `json:"from"`
	FromName string `json:"from_name"`
}

type SchedulerConfig struct {
	Interval    Duration `json:"interval"`
	SendDelay   Duration `json:"send_delay"`
	CallTimeout Duration `json:"call_timeout"`
	Timezone    string   `json:"timezone"`
}

type LogsConfig struct {
	MaxEntries    int    `json:"max_entries"`
	RetentionDays int    `json:"retention_days"`
	CleanupAt     string `json:"cleanup_at"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

type RedisConfig struct {
	Addr     string   `json:"addr"`
	Password string   `json:"password"`
	DB       int      `json:"db"`
	ClaimTTL Duration `json:"claim_ttl"`
}

type ArchiveConfig struct {
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

// Duration is a time.Duration encoded as a Go duration string ("90s", "1m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

const (
	DefaultMaxLogEntries  = 1000
	DefaultRetentionDays  = 30
	DefaultCleanupAt      = "03:30"
	DefaultTickInterval   = time.Minute
	DefaultSendDelay      = 2 * time.Second
	DefaultCallTimeout    = 20 * time.Second
	DefaultClaimTTL       = 36 * time.Hour
	DefaultGeminiModel    = "gemini-1.5-flash"
	DefaultHTTPAddr       = ":8080"
	DefaultSQLitePath     = "climatewatch.db"
	DefaultArchivePrefix  = "emaillog"
	DefaultEmailMode      = "emailjs"
	DefaultDatabaseDriver = "sqlite"
)

var AppConfig Config

func LoadConfig(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		logger.Error("failed to open config file", "error", err)
		return err
	}
	defer file.Close()

	var cfg Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		logger.Error("failed to decode config file", "error", err)
		return err
	}

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	AppConfig = cfg
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Weather.APIKey, "OPENWEATHER_API_KEY")
	setString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Email.EmailJS.ServiceID, "EMAILJS_SERVICE_ID")
	setString(&cfg.Email.EmailJS.TemplateID, "EMAILJS_TEMPLATE_ID")
	setString(&cfg.Email.EmailJS.PublicKey, "EMAILJS_PUBLIC_KEY")
	setString(&cfg.Email.EmailJS.PrivateKey, "EMAILJS_PRIVATE_KEY")
	setString(&cfg.Email.SMTP.Password, "SMTP_PASSWORD")
	setString(&cfg.Telegram.Token, "TELEGRAM_TOKEN")
	setString(&cfg.Database.DSN, "DATABASE_DSN")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Archive.AccessKey, "S3_ACCESS_KEY")
	setString(&cfg.Archive.SecretKey, "S3_SECRET_KEY")

	if raw := strings.TrimSpace(os.Getenv("TELEGRAM_ALERT_CHAT_ID")); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		} else {
			logger.Error("invalid TELEGRAM_ALERT_CHAT_ID", "value", raw, "error", err)
		}
	}
}

func setString(dst *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*dst = value
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DefaultDatabaseDriver
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.DSN == "" {
		cfg.Database.DSN = DefaultSQLitePath
	}
	if cfg.Email.Mode == "" {
		cfg.Email.Mode = DefaultEmailMode
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = DefaultGeminiModel
	}
	if cfg.Scheduler.Interval.Duration <= 0 {
		cfg.Scheduler.Interval.Duration = DefaultTickInterval
	}
	if cfg.Scheduler.SendDelay.Duration < 0 {
		cfg.Scheduler.SendDelay.Duration = 0
	} else if cfg.Scheduler.SendDelay.Duration == 0 {
		cfg.Scheduler.SendDelay.Duration = DefaultSendDelay
	}
	if cfg.Scheduler.CallTimeout.Duration <= 0 {
		cfg.Scheduler.CallTimeout.Duration = DefaultCallTimeout
	}
	if cfg.Logs.MaxEntries <= 0 {
		cfg.Logs.MaxEntries = DefaultMaxLogEntries
	}
	if cfg.Logs.RetentionDays <= 0 {
		cfg.Logs.RetentionDays = DefaultRetentionDays
	}
	if cfg.Logs.CleanupAt == "" {
		cfg.Logs.CleanupAt = DefaultCleanupAt
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
	if cfg.Redis.ClaimTTL.Duration <= 0 {
		cfg.Redis.ClaimTTL.Duration = DefaultClaimTTL
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = DefaultArchivePrefix
	}
}

// Location resolves the scheduler's wall-clock zone, defaulting to the host zone.
func (c SchedulerConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, fmt.Errorf("invalid scheduler timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
