// Package emaillog records email send attempts and derives delivery statistics.
package emaillog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smith3v/climatewatch-notifier/pkg/db"
	"github.com/smith3v/climatewatch-notifier/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DefaultMaxEntries = 1000

const dayKeyLayout = "2006-01-02"

type Options struct {
	MaxEntries int
	Now        func() time.Time
	// Location defines calendar days for HasSentToday and stats.
	Location *time.Location
}

type Store struct {
	db         *gorm.DB
	maxEntries int
	now        func() time.Time
	loc        *time.Location
}

func NewStore(gdb *gorm.DB, opts Options) *Store {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Store{db: gdb, maxEntries: opts.MaxEntries, now: opts.Now, loc: opts.Location}
}

// LogAttempt records a pending attempt and evicts the oldest entries beyond the cap.
func (s *Store) LogAttempt(email, name string, typ Type, cities []string) (string, error) {
	citiesJSON, err := json.Marshal(nonNil(cities))
	if err != nil {
		return "", fmt.Errorf("encode cities: %w", err)
	}
	id := uuid.Must(uuid.NewV7()).String()
	row := db.EmailLog{
		ID:        id,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Name:      name,
		Status:    string(StatusPending),
		Type:      string(typ),
		Cities:    citiesJSON,
		CreatedAt: s.now().UTC(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return trim(tx, s.maxEntries)
	})
	if err != nil {
		return "", fmt.Errorf("log attempt for %s: %w", email, err)
	}
	logger.Debug("logged email attempt", "id", id, "email", row.Email, "type", typ)
	return id, nil
}

func trim(tx *gorm.DB, maxEntries int) error {
	var cutoff []uint64
	err := tx.Model(&db.EmailLog{}).
		Order("seq DESC").
		Offset(maxEntries).
		Limit(1).
		Pluck("seq", &cutoff).Error
	if err != nil {
		return err
	}
	if len(cutoff) == 0 {
		return nil
	}
	return tx.Where("seq <= ?", cutoff[0]).Delete(&db.EmailLog{}).Error
}

// Update merges patch into the entry with id; an unknown id is ignored.
func (s *Store) Update(id string, patch Patch) error {
	updates := map[string]any{}
	if patch.Status != "" {
		updates["status"] = string(patch.Status)
	}
	if patch.Error != "" {
		updates["error"] = patch.Error
	}
	if patch.ErrorKind != ErrorNone {
		updates["error_kind"] = string(patch.ErrorKind)
	}
	if patch.Transport != "" {
		updates["transport"] = patch.Transport
	}
	if patch.DeliveryTimeMs != nil {
		updates["delivery_ms"] = *patch.DeliveryTimeMs
	}
	if len(patch.Payload) > 0 {
		updates["payload"] = datatypes.JSON(patch.Payload)
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = s.now().UTC()

	res := s.db.Model(&db.EmailLog{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update log entry %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		logger.Debug("log entry not found for update", "id", id)
	}
	return nil
}

func (s *Store) Get(id string) (Entry, bool, error) {
	entries, err := s.find(s.db.Where("id = ?", id).Limit(1))
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[0], true, nil
}

// ListAll returns every entry, newest first.
func (s *Store) ListAll() ([]Entry, error) {
	return s.find(s.db)
}

func (s *Store) ListFor(email string) ([]Entry, error) {
	return s.find(s.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))))
}

func (s *Store) ListByStatus(status Status) ([]Entry, error) {
	return s.find(s.db.Where("status = ?", string(status)))
}

// ListSince returns entries created within the last days days.
func (s *Store) ListSince(days int) ([]Entry, error) {
	return s.find(s.db.Where("created_at >= ?", s.cutoff(days)))
}

// ListOlderThan returns entries created before the last days days.
func (s *Store) ListOlderThan(days int) ([]Entry, error) {
	return s.ListBefore(s.cutoff(days))
}

// ListBefore returns entries created strictly before t.
func (s *Store) ListBefore(t time.Time) ([]Entry, error) {
	return s.find(s.db.Where("created_at < ?", t.UTC()))
}

// HasSentToday reports whether email has a sent entry on the current calendar day.
func (s *Store) HasSentToday(email string) (bool, error) {
	start, end := s.dayBounds(s.now())
	var count int64
	err := s.db.Model(&db.EmailLog{}).
		Where("email = ? AND status = ? AND created_at >= ? AND created_at < ?",
			strings.ToLower(strings.TrimSpace(email)), string(StatusSent), start, end).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check sent today for %s: %w", email, err)
	}
	return count > 0, nil
}

func (s *Store) LastSentFor(email string) (Entry, bool, error) {
	entries, err := s.find(s.db.
		Where("email = ? AND status = ?", strings.ToLower(strings.TrimSpace(email)), string(StatusSent)).
		Limit(1))
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[0], true, nil
}

// Stats aggregates entries from the last days days; days <= 0 covers the whole log.
func (s *Store) Stats(days int) (Stats, error) {
	var (
		entries []Entry
		err     error
	)
	if days > 0 {
		entries, err = s.ListSince(days)
	} else {
		entries, err = s.ListAll()
	}
	if err != nil {
		return Stats{}, err
	}
	return summarize(entries, s.loc), nil
}

func summarize(entries []Entry, loc *time.Location) Stats {
	stats := Stats{
		Daily:       make(map[string]Counts),
		ByRecipient: make(map[string]Counts),
	}
	for _, e := range entries {
		stats.Total++
		day := e.Timestamp.In(loc).Format(dayKeyLayout)
		daily := stats.Daily[day]
		user := stats.ByRecipient[e.Email]
		daily.Total++
		user.Total++
		switch e.Status {
		case StatusSent:
			stats.Sent++
			daily.Sent++
			user.Sent++
		case StatusFailed:
			stats.Failed++
			daily.Failed++
			user.Failed++
		case StatusPending:
			stats.Pending++
		}
		stats.Daily[day] = daily
		stats.ByRecipient[e.Email] = user
	}
	if settled := stats.Sent + stats.Failed; settled > 0 {
		stats.SuccessRate = float64(stats.Sent) / float64(settled) * 100
	}
	return stats
}

func (s *Store) ClearAll() error {
	if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&db.EmailLog{}).Error; err != nil {
		return fmt.Errorf("clear email log: %w", err)
	}
	return nil
}

// ClearOlderThan deletes entries created before the last days days.
func (s *Store) ClearOlderThan(days int) (int64, error) {
	return s.ClearBefore(s.cutoff(days))
}

// ClearBefore deletes entries created strictly before t.
func (s *Store) ClearBefore(t time.Time) (int64, error) {
	res := s.db.Where("created_at < ?", t.UTC()).Delete(&db.EmailLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("clear email log before %s: %w", t.UTC().Format(time.RFC3339), res.Error)
	}
	return res.RowsAffected, nil
}

// Export renders the whole log as indented JSON, newest first.
func (s *Store) Export() ([]byte, error) {
	entries, err := s.ListAll()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(nonNilEntries(entries), "", "  ")
}

func (s *Store) cutoff(days int) time.Time {
	return s.now().AddDate(0, 0, -days).UTC()
}

func (s *Store) dayBounds(now time.Time) (time.Time, time.Time) {
	local := now.In(s.loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

func (s *Store) find(q *gorm.DB) ([]Entry, error) {
	var rows []db.EmailLog
	if err := q.Order("seq DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query email log: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func fromRow(row db.EmailLog) Entry {
	var cities []string
	if len(row.Cities) > 0 {
		if err := json.Unmarshal(row.Cities, &cities); err != nil {
			logger.Error("failed to decode log cities", "id", row.ID, "error", err)
		}
	}
	entry := Entry{
		ID:             row.ID,
		Email:          row.Email,
		Name:           row.Name,
		Timestamp:      row.CreatedAt.UTC(),
		Status:         Status(row.Status),
		Type:           Type(row.Type),
		Cities:         nonNil(cities),
		Error:          row.Error,
		ErrorKind:      ErrorKind(row.ErrorKind),
		Transport:      row.Transport,
		DeliveryTimeMs: row.DeliveryMs,
	}
	if len(row.Payload) > 0 {
		entry.Payload = json.RawMessage(row.Payload)
	}
	return entry
}

func nonNil(cities []string) []string {
	if cities == nil {
		return []string{}
	}
	return cities
}

func nonNilEntries(entries []Entry) []Entry {
	if entries == nil {
		return []Entry{}
	}
	return entries
}
