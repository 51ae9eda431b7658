// Package events holds the contracts shared by every service that publishes
// or consumes account events: the subject (routing key) of each event and the
// payload that travels with it.
package events

// Subject is the routing key an event is published under.
type Subject string

const (
	// UserCreated is published by the account service after a signup.
	UserCreated Subject = "user:created"
	// TokenCreated is published whenever a verification or reset token is issued.
	TokenCreated Subject = "token:created"
)

func (s Subject) String() string { return string(s) }

// Contract couples a subject to its payload type. Publishers and listeners are
// parameterized by a contract, so a listener can only decode the payload type
// that belongs to the routing key it binds. The subject is unexported: the
// contracts below are the only ones outside this package.
type Contract[T any] struct {
	subject Subject
}

// Subject returns the routing key of the contract.
func (c Contract[T]) Subject() Subject { return c.subject }

var (
	UserCreatedContract  = Contract[UserCreatedData]{subject: UserCreated}
	TokenCreatedContract = Contract[TokenCreatedData]{subject: TokenCreated}
)
