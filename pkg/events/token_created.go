package events

// TokenKind distinguishes what a single-use token unlocks.
type TokenKind string

const (
	TokenEmailVerification TokenKind = "email-verification"
	TokenResetPassword     TokenKind = "reset-password"
)

// Valid reports whether k is a known token kind.
func (k TokenKind) Valid() bool {
	return k == TokenEmailVerification || k == TokenResetPassword
}

// TokenCreatedData is the body of a token:created message.
type TokenCreatedData struct {
	Email string    `json:"email"`
	Type  TokenKind `json:"type"`
	Token string    `json:"token"`
}
