package canvass

import (
	"errors"
	"fmt"
)

// Common errors returned by canvass.
var (
	// ErrNotFound is returned when an entity or document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrNoSession is returned when an operation needs a signed-in user.
	ErrNoSession = errors.New("no active session")

	// ErrNotGuest is returned when guest conversion is attempted outside guest mode.
	ErrNotGuest = errors.New("not in guest mode")

	// ErrGuestMode is returned by SignUp while guest data is waiting to be
	// converted with ConvertGuestToAccount.
	ErrGuestMode = errors.New("in guest mode: convert the guest data to an account instead")

	// ErrRemoteSubtreeExists is returned when converting a guest into an account
	// that already has remote data.
	ErrRemoteSubtreeExists = errors.New("remote data already exists for this account")

	// ErrSyncTimeout is returned when a bounded sync wait expires.
	ErrSyncTimeout = errors.New("sync did not finish before the timeout")

	// ErrSyncInProgress is returned when a sync is requested while one is running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrSyncPaused is returned when a sync is requested while the engine is paused.
	ErrSyncPaused = errors.New("sync is paused")

	// ErrDuplicateLead is returned when a lead with the same phone or email exists.
	ErrDuplicateLead = errors.New("lead with the same contact already exists")

	// ErrAccountExists is returned when signing up with an email already in use.
	ErrAccountExists = errors.New("account already exists")

	// ErrInvalidCredentials is returned when sign-in fails.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError is returned when input or configuration validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// SyncError is returned when a remote operation fails with details.
// Extractable via errors.As(). Supports Unwrap().
type SyncError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync: %s failed (status %d): %v", e.Operation, e.StatusCode, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Kind classifies a failure for retry and user messaging.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindData
	KindAuthentication
	KindPermission
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindData:
		return "data"
	case KindAuthentication:
		return "authentication"
	case KindPermission:
		return "permission"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a classified failure produced by the wrapper around an external
// collaborator (remote store, identity provider). Classification happens where
// the provider error is first seen, never by inspecting message text.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether retrying the operation may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindAuthentication, KindPermission, KindValidation:
		return false
	default:
		return true
	}
}

// E builds a classified error. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the classification of err. ValidationError values count as
// KindValidation; anything unclassified is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth retrying. Unclassified errors are retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindAuthentication, KindPermission, KindValidation:
		return false
	default:
		return true
	}
}

// UserMessage returns a short message suitable for showing to the rep.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindNetwork:
		return "Network error. Your changes are saved and will sync when you're back online."
	case KindData:
		return "Some data could not be read. Try syncing again."
	case KindAuthentication:
		return "Please sign in again."
	case KindPermission:
		return "You don't have permission to do that."
	case KindValidation:
		var ve *ValidationError
		if errors.As(err, &ve) {
			return ve.Message
		}
		return "Some details are invalid."
	default:
		return "Sync failed. Please try again."
	}
}
