package models

import "time"

const (
	EmailOK        = "ok"
	EmailSkipped   = "skipped"
	EmailNoBody    = "no-body"
	EmailDBError   = "db-error"
	EmailDuplicate = "duplicate"
)

// ProcessedEmail remembers inbound order mails by Message-ID.
type ProcessedEmail struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	MessageID  string    `gorm:"size:255;not null;uniqueIndex"`
	ReceivedAt time.Time `gorm:"not null"`
	FromAddr   string    `gorm:"size:255"`
	Subject    string    `gorm:"size:512"`
	Status     string    `gorm:"size:20;not null"`
	LastError  string    `gorm:"size:500"`
}
