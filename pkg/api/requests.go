package api

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/smith3v/climatewatch-notifier/pkg/emaillog"
	"github.com/smith3v/climatewatch-notifier/pkg/preferences"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, _, err := preferences.ParseClock(fl.Field().String())
		return err == nil && len(fl.Field().String()) == 5
	})
	return v
}

type preferenceRequest struct {
	Email     string   `json:"email" validate:"required,email"`
	Name      string   `json:"name" validate:"max=200"`
	Cities    []string `json:"cities" validate:"max=20,dive,required,max=100"`
	Time      string   `json:"time" validate:"required,clock"`
	Frequency string   `json:"frequency" validate:"omitempty,oneof=daily weekdays weekends"`
	Timezone  string   `json:"timezone" validate:"omitempty,timezone"`
	Enabled   bool     `json:"enabled"`
}

func (r preferenceRequest) toPreference() preferences.Preference {
	return preferences.Preference{
		Email:     r.Email,
		Name:      strings.TrimSpace(r.Name),
		Cities:    r.Cities,
		Time:      r.Time,
		Frequency: preferences.Frequency(r.Frequency),
		Timezone:  r.Timezone,
		Enabled:   r.Enabled,
	}
}

type logsQuery struct {
	Email  string `query:"email" validate:"omitempty,email"`
	Status string `query:"status" validate:"omitempty,oneof=pending sent failed"`
	Days   int    `query:"days" validate:"min=0"`
}

func (q logsQuery) matches(e emaillog.Entry) bool {
	if q.Email != "" && !strings.EqualFold(e.Email, strings.TrimSpace(q.Email)) {
		return false
	}
	if q.Status != "" && string(e.Status) != q.Status {
		return false
	}
	return true
}

type purgeQuery struct {
	OlderThanDays int  `query:"older_than_days" validate:"min=0"`
	All           bool `query:"all"`
}

// sendRequest triggers a one-off email. Cities fall back to the recipient's
// saved preference when omitted.
type sendRequest struct {
	Email  string   `json:"email" validate:"required,email"`
	Name   string   `json:"name" validate:"max=200"`
	Cities []string `json:"cities" validate:"max=20,dive,required,max=100"`
}
