package events

import "time"

// Role of an account holder.
type Role string

const (
	RoleAdmin   Role = "admin"
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePatient, RoleDoctor:
		return true
	}
	return false
}

// Gender of an account holder.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Valid reports whether g is a known gender.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// UserCreatedData is the body of a user:created message.
type UserCreatedData struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Role          Role       `json:"role"`
	DOB           time.Time  `json:"dob"`
	Gender        Gender     `json:"gender"`
	FullName      string     `json:"fullName"`
	PhoneNumber   *string    `json:"phoneNumber"`
	EmailVerified *time.Time `json:"emailVerified"`
}
