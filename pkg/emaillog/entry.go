package emaillog

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

type Type string

const (
	TypeDaily Type = "daily"
	TypeTest  Type = "test"
	TypeDemo  Type = "demo"
)

// ErrorKind classifies why a send failed.
type ErrorKind string

const (
	ErrorNone           ErrorKind = ""
	ErrorTimeout        ErrorKind = "timeout"
	ErrorUpstreamStatus ErrorKind = "upstream_status"
	ErrorTransport      ErrorKind = "transport"
	ErrorInvalidPayload ErrorKind = "invalid_payload"
	ErrorInternal       ErrorKind = "internal"
)

type Entry struct {
	ID             string          `json:"id"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	Timestamp      time.Time       `json:"timestamp"`
	Status         Status          `json:"status"`
	Type           Type            `json:"type"`
	Cities         []string        `json:"cities"`
	Error          string          `json:"error,omitempty"`
	ErrorKind      ErrorKind       `json:"errorKind,omitempty"`
	Transport      string          `json:"transport,omitempty"`
	DeliveryTimeMs *int64          `json:"deliveryTime,omitempty"`
	Payload        json.RawMessage `json:"emailData,omitempty"`
}

// Patch carries the fields Update merges into an entry. Zero values are left untouched.
type Patch struct {
	Status         Status
	Error          string
	ErrorKind      ErrorKind
	Transport      string
	DeliveryTimeMs *int64
	Payload        json.RawMessage
}

type Counts struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

type Stats struct {
	Total       int               `json:"total"`
	Sent        int               `json:"sent"`
	Failed      int               `json:"failed"`
	Pending     int               `json:"pending"`
	SuccessRate float64           `json:"successRate"`
	Daily       map[string]Counts `json:"dailyBreakdown"`
	ByRecipient map[string]Counts `json:"userBreakdown"`
}
