// Package preferences persists per-recipient notification settings.
package preferences

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/smith3v/climatewatch-notifier/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Frequency string

const (
	Daily    Frequency = "daily"
	Weekdays Frequency = "weekdays"
	Weekends Frequency = "weekends"
)

var ErrEmptyEmail = errors.New("preference email is required")

type Preference struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Cities    []string  `json:"cities"`
	Time      string    `json:"time"`
	Frequency Frequency `json:"frequency"`
	Timezone  string    `json:"timezone"`
	Enabled   bool      `json:"enabled"`
}

type Store struct {
	db *gorm.DB
}

func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

// Upsert replaces whatever is stored for p.Email.
func (s *Store) Upsert(p Preference) error {
	email := normalizeEmail(p.Email)
	if email == "" {
		return ErrEmptyEmail
	}
	p.Email = email
	row, err := toRow(p)
	if err != nil {
		return err
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "cities", "send_time", "frequency", "timezone", "enabled", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert preference %s: %w", email, err)
	}
	return nil
}

// Remove deletes the preference for email; a missing record is not an error.
func (s *Store) Remove(email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	if err := s.db.Where("email = ?", email).Delete(&db.EmailPreference{}).Error; err != nil {
		return fmt.Errorf("remove preference %s: %w", email, err)
	}
	return nil
}

func (s *Store) Get(email string) (Preference, bool, error) {
	var row db.EmailPreference
	err := s.db.Where("email = ?", normalizeEmail(email)).Limit(1).Find(&row).Error
	if err != nil {
		return Preference{}, false, fmt.Errorf("load preference: %w", err)
	}
	if row.Email == "" {
		return Preference{}, false, nil
	}
	p, err := fromRow(row)
	return p, err == nil, err
}

func (s *Store) List() ([]Preference, error) {
	var rows []db.EmailPreference
	if err := s.db.Order("email").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	out := make([]Preference, 0, len(rows))
	for _, row := range rows {
		p, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ImportJSON loads a JSON array of preferences, such as a browser storage export.
func (s *Store) ImportJSON(r io.Reader) (int, error) {
	var items []Preference
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return 0, fmt.Errorf("decode preferences: %w", err)
	}
	imported := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		txStore := NewStore(tx)
		for _, item := range items {
			if err := txStore.Upsert(item); err != nil {
				if errors.Is(err, ErrEmptyEmail) {
					continue
				}
				return err
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// uniqueCities trims names and drops repeats, keeping first-seen order.
func uniqueCities(cities []string) []string {
	seen := make(map[string]struct{}, len(cities))
	out := make([]string, 0, len(cities))
	for _, city := range cities {
		city = strings.TrimSpace(city)
		if city == "" {
			continue
		}
		key := strings.ToLower(city)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, city)
	}
	return out
}

func toRow(p Preference) (db.EmailPreference, error) {
	cities, err := json.Marshal(uniqueCities(p.Cities))
	if err != nil {
		return db.EmailPreference{}, fmt.Errorf("encode cities: %w", err)
	}
	freq := p.Frequency
	if freq == "" {
		freq = Daily
	}
	return db.EmailPreference{
		Email:     p.Email,
		Name:      strings.TrimSpace(p.Name),
		Cities:    cities,
		SendTime:  strings.TrimSpace(p.Time),
		Frequency: string(freq),
		Timezone:  p.Timezone,
		Enabled:   p.Enabled,
	}, nil
}

func fromRow(row db.EmailPreference) (Preference, error) {
	var cities []string
	if len(row.Cities) > 0 {
		if err := json.Unmarshal(row.Cities, &cities); err != nil {
			return Preference{}, fmt.Errorf("decode cities for %s: %w", row.Email, err)
		}
	}
	return Preference{
		Email:     row.Email,
		Name:      row.Name,
		Cities:    cities,
		Time:      row.SendTime,
		Frequency: Frequency(row.Frequency),
		Timezone:  row.Timezone,
		Enabled:   row.Enabled,
	}, nil
}
