package models

import (
	"time"

	"github.com/CyberwizD/account-events/pkg/events"
)

// User is an account holder. Only ID and EmailVerifiedAt matter to the token
// flows; the rest is profile data carried into user:created.
type User struct {
	ID              string        `gorm:"primaryKey;size:36" json:"id"`
	Email           string        `gorm:"uniqueIndex;not null;size:320" json:"email"`
	PasswordHash    string        `gorm:"not null" json:"-"`
	FullName        string        `gorm:"not null" json:"fullName"`
	Role            events.Role   `gorm:"not null;size:16" json:"role"`
	DOB             time.Time     `gorm:"not null" json:"dob"`
	Gender          events.Gender `gorm:"not null;size:16" json:"gender"`
	PhoneNumber     *string       `gorm:"size:32" json:"phoneNumber"`
	EmailVerifiedAt *time.Time    `json:"emailVerified"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Verified reports whether the email address has been confirmed.
func (u *User) Verified() bool {
	return u.EmailVerifiedAt != nil
}

// CreatedEvent builds the user:created payload.
func (u *User) CreatedEvent() events.UserCreatedData {
	return events.UserCreatedData{
		ID:            u.ID,
		Email:         u.Email,
		Role:          u.Role,
		DOB:           u.DOB,
		Gender:        u.Gender,
		FullName:      u.FullName,
		PhoneNumber:   u.PhoneNumber,
		EmailVerified: u.EmailVerifiedAt,
	}
}
