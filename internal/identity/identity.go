// Package identity signs reps in and out. The Provider interface is what the
// application depends on; LocalProvider is an on-device implementation backed
// by the local store.
package identity

import (
	"context"
	"net/mail"
	"strings"

	"github.com/hyperengineering/canvass"
)

// MinPasswordLength is the shortest password accepted by SignUp.
const MinPasswordLength = 6

// User is the signed-in identity.
type User struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// EventKind describes an auth state change.
type EventKind int

const (
	EventSignedIn EventKind = iota
	EventSignedOut
	EventAccountDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventSignedIn:
		return "signed_in"
	case EventSignedOut:
		return "signed_out"
	case EventAccountDeleted:
		return "account_deleted"
	default:
		return "unknown"
	}
}

// Event is delivered to change subscribers.
type Event struct {
	Kind EventKind
	User *User
}

// Provider is the identity collaborator.
type Provider interface {
	SignUp(ctx context.Context, email, password, displayName string) (*User, error)
	SignIn(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
	DeleteAccount(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
	CurrentUser() *User
	IsAuthenticated() bool
	// Subscribe returns a channel of auth changes and a cancel func.
	Subscribe() (<-chan Event, func())
}

// ValidateEmail checks the email format.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &canvass.ValidationError{Field: "Email", Message: "email is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return &canvass.ValidationError{Field: "Email", Message: "email is invalid"}
	}
	return nil
}

// ValidatePassword checks the password length.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &canvass.ValidationError{Field: "Password", Message: "password must be at least 6 characters"}
	}
	return nil
}

// ValidateCredentials runs both checks. Callers use it before any network call.
func ValidateCredentials(email, password string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	return ValidatePassword(password)
}
