package db

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smith3v/climatewatch-notifier/pkg/config"
	"github.com/smith3v/climatewatch-notifier/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Export DB variable
var DB *gorm.DB

func InitDB(cfg config.DatabaseConfig) error {
	dialector, err := openDialector(cfg)
	if err != nil {
		logger.Error("invalid database configuration", "driver", cfg.Driver, "error", err)
		return err
	}
	gormLogger, gormErr := newGormLogger(config.AppConfig.Logging.GormLevel)
	if gormErr != nil {
		logger.Error("invalid gorm log level", "value", config.AppConfig.Logging.GormLevel, "error", gormErr)
	}
	DB, err = gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return err
	}
	if err := Migrate(DB); err != nil {
		logger.Error("failed to auto-migrate database", "error", err)
		return err
	}
	return nil
}

// Migrate creates or updates the notifier tables.
func Migrate(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	if err := gdb.AutoMigrate(&EmailPreference{}, &EmailLog{}); err != nil {
		return err
	}
	return migrateLegacyStatuses(gdb)
}

// migrateLegacyStatuses maps status spellings from imported browser logs.
func migrateLegacyStatuses(gdb *gorm.DB) error {
	query := `
UPDATE email_logs
SET status = CASE
    WHEN status IN ('delivered', 'success') THEN 'sent'
    WHEN status IN ('error', 'failure') THEN 'failed'
    ELSE status
  END
WHERE status IN ('delivered', 'success', 'error', 'failure')
`
	return gdb.Exec(query).Error
}

func openDialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = config.DefaultSQLitePath
		}
		return sqlite.Open(sqliteDSN(dsn)), nil
	case "postgres":
		return postgres.Open(postgresDSN(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// sqliteDSN turns on WAL and a busy timeout for file databases.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") || strings.Contains(path, ":memory:") {
		return path
	}
	return "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

func postgresDSN(cfg config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return "host=" + cfg.Host +
		" user=" + cfg.User +
		" password=" + cfg.Password +
		" dbname=" + cfg.DBName +
		" port=" + strconv.Itoa(cfg.Port) +
		" sslmode=" + sslMode
}
