package domain

import (
	"errors"
	"time"
)

var ErrOutboxRowNotFound = errors.New("outbox row not found")

// OutboxStatus tracks the email delivery lifecycle.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
	OutboxDead    OutboxStatus = "dead"
)

// OutboxRow is unique on (analysis_id, recipient).
type OutboxRow struct {
	ID          string
	AnalysisID  string
	Recipient   string
	Status      OutboxStatus
	Attempts    int
	ScheduledAt time.Time
	RetryNextAt time.Time
	LockedUntil time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NotificationRecipient is a mailbox address eligible for analysis
// notifications.
type NotificationRecipient struct {
	ID     string
	Email  string
	Active bool
}
