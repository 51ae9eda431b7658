package models

import (
	"time"

	"github.com/CyberwizD/account-events/pkg/events"
)

// Token is a single-use credential for email verification or password reset.
// Every field is filled in before the row is written.
type Token struct {
	ID        string           `gorm:"primaryKey;size:36"`
	UserID    string           `gorm:"index;not null;size:36"`
	Value     string           `gorm:"uniqueIndex;not null;size:128"`
	Kind      events.TokenKind `gorm:"index;not null;size:32"`
	ExpiresAt time.Time        `gorm:"index;not null"`
	CreatedAt time.Time
}

// Expired reports whether the token is past its TTL at now.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
