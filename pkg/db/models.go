package db

import (
	"time"

	"gorm.io/datatypes"
)

type EmailPreference struct {
	Email     string         `gorm:"primaryKey;size:320"`
	Name      string         `gorm:"not null;default:''"`
	Cities    datatypes.JSON `gorm:"not null"`
	SendTime  string         `gorm:"size:5;not null"` // "HH:MM" on the scheduler's wall clock
	Frequency string         `gorm:"size:16;not null;default:daily"`
	Timezone  string         `gorm:"not null;default:''"` // informational only
	Enabled   bool           `gorm:"index;not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EmailLog struct {
	Seq        uint64         `gorm:"primaryKey;autoIncrement"` // insertion order
	ID         string         `gorm:"size:36;uniqueIndex;not null"`
	Email      string         `gorm:"size:320;index:idx_email_log_email_created;not null"`
	Name       string         `gorm:"not null;default:''"`
	Status     string         `gorm:"size:16;index;not null"`
	Type       string         `gorm:"size:16;not null"`
	Cities     datatypes.JSON `gorm:"not null"`
	Error      string         `gorm:"not null;default:''"`
	ErrorKind  string         `gorm:"size:32;not null;default:''"`
	Transport  string         `gorm:"size:16;not null;default:''"`
	DeliveryMs *int64
	Payload    datatypes.JSON
	CreatedAt  time.Time `gorm:"index:idx_email_log_email_created;not null"`
	UpdatedAt  time.Time
}
