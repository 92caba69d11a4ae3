// Package housekeeping runs the nightly delivery-log retention job.
package housekeeping

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/smith3v/climatewatch-notifier/pkg/archive"
	"github.com/smith3v/climatewatch-notifier/pkg/emaillog"
	"github.com/smith3v/climatewatch-notifier/pkg/logger"
)

const jobTimeout = 5 * time.Minute

type LogStore interface {
	ListBefore(t time.Time) ([]emaillog.Entry, error)
	ClearBefore(t time.Time) (int64, error)
}

type Options struct {
	RetentionDays int
	// CleanupAt is the "HH:MM" wall-clock time of the daily run.
	CleanupAt string
	Location  *time.Location
	// Archiver is optional; without it old entries are purged without a copy.
	Archiver archive.Archiver
	Now      func() time.Time
}

type Result struct {
	Archived   int    `json:"archived"`
	ArchiveKey string `json:"archiveKey,omitempty"`
	Removed    int64  `json:"removed"`
}

type Janitor struct {
	logs      LogStore
	archiver  archive.Archiver
	retention int
	cleanupAt string
	now       func() time.Time
	scheduler *gocron.Scheduler
}

func New(logs LogStore, opts Options) *Janitor {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Janitor{
		logs:      logs,
		archiver:  opts.Archiver,
		retention: opts.RetentionDays,
		cleanupAt: opts.CleanupAt,
		now:       opts.Now,
		scheduler: gocron.NewScheduler(opts.Location),
	}
}

// Start schedules RunOnce daily at the cleanup time.
func (j *Janitor) Start() error {
	if j.retention <= 0 {
		logger.Info("log retention disabled; housekeeping not scheduled")
		return nil
	}
	_, err := j.scheduler.Every(1).Day().At(j.cleanupAt).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if _, err := j.RunOnce(ctx); err != nil {
			logger.Error("housekeeping run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule housekeeping at %q: %w", j.cleanupAt, err)
	}
	j.scheduler.StartAsync()
	logger.Info("housekeeping scheduled", "at", j.cleanupAt, "retention_days", j.retention)
	return nil
}

func (j *Janitor) Stop() {
	if j.scheduler != nil {
		j.scheduler.Stop()
	}
}

// RunOnce archives entries past retention and then deletes them. Both steps
// share one cutoff, so only archived entries are deleted. Entries are kept
// when the archive upload fails.
func (j *Janitor) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	if j.retention <= 0 {
		return res, nil
	}
	now := j.now()
	cutoff := now.AddDate(0, 0, -j.retention)

	if j.archiver != nil {
		old, err := j.logs.ListBefore(cutoff)
		if err != nil {
			return res, fmt.Errorf("list expired log entries: %w", err)
		}
		if len(old) > 0 {
			data, err := json.MarshalIndent(old, "", "  ")
			if err != nil {
				return res, fmt.Errorf("encode expired log entries: %w", err)
			}
			key, err := j.archiver.Archive(ctx, data, now)
			if err != nil {
				return res, err
			}
			res.Archived = len(old)
			res.ArchiveKey = key
		}
	}

	removed, err := j.logs.ClearBefore(cutoff)
	if err != nil {
		return res, fmt.Errorf("purge expired log entries: %w", err)
	}
	res.Removed = removed
	logger.Info("housekeeping finished", "archived", res.Archived, "removed", res.Removed, "key", res.ArchiveKey)
	return res, nil
}
