package models

import (
	"errors"
	"strings"
	"time"

	"github.com/CyberwizD/account-events/pkg/events"
)

const dateLayout = "2006-01-02"

// SignUpRequest is the body of POST /signup.
type SignUpRequest struct {
	Email       string  `json:"email" binding:"required,email"`
	Password    string  `json:"password" binding:"required"`
	Role        string  `json:"role" binding:"required,oneof=doctor patient admin"`
	Gender      string  `json:"gender" binding:"required,oneof=male female other"`
	DOB         string  `json:"dob" binding:"required,datetime=2006-01-02"`
	FullName    string  `json:"fullName" binding:"required"`
	PhoneNumber *string `json:"phoneNumber" binding:"omitempty,min=7,max=20"`
}

// Normalize trims the inputs and checks what binding tags cannot express.
func (r *SignUpRequest) Normalize() error {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FullName = strings.TrimSpace(r.FullName)
	if r.FullName == "" {
		return errors.New("Invalid Name")
	}
	if err := checkPassword(&r.Password); err != nil {
		return err
	}
	if r.PhoneNumber != nil {
		p := strings.TrimSpace(*r.PhoneNumber)
		if p == "" {
			r.PhoneNumber = nil
		} else {
			r.PhoneNumber = &p
		}
	}
	return nil
}

// BirthDate parses DOB; Normalize or binding must have run first.
func (r *SignUpRequest) BirthDate() (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(r.DOB))
}

func (r *SignUpRequest) RoleValue() events.Role     { return events.Role(r.Role) }
func (r *SignUpRequest) GenderValue() events.Gender { return events.Gender(r.Gender) }

// SignInRequest is the body of POST /signin.
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (r *SignInRequest) Normalize() error {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Password = strings.TrimSpace(r.Password)
	if r.Password == "" {
		return errors.New("You must enter a password")
	}
	return nil
}

// ForgotPasswordRequest is the body of POST /forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest is the body of POST /reset-password/:token.
type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

func (r *ResetPasswordRequest) Normalize() error {
	return checkPassword(&r.Password)
}

// ChangePasswordRequest is the body of POST /change-password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

func (r *ChangePasswordRequest) Normalize() error {
	r.OldPassword = strings.TrimSpace(r.OldPassword)
	if r.OldPassword == "" {
		return errors.New("Old password is required")
	}
	return checkPassword(&r.NewPassword)
}

func checkPassword(p *string) error {
	*p = strings.TrimSpace(*p)
	if n := len(*p); n < 4 || n > 20 {
		return errors.New("Password must be between 4 and 20 characters")
	}
	return nil
}
