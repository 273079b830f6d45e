package model

import (
	"errors"
	"fmt"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrDuplicateRegistration = errors.New("already registered")
	ErrUpstream              = errors.New("upstream service failed")
	ErrDataUnavailable       = errors.New("dataset unavailable")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrMalformedState        = errors.New("malformed registration state")
)

// ValidationError reports a form value that failed its field rule
type ValidationError struct {
	Field   Field
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// DuplicateRegistrationError carries the registration that already exists
type DuplicateRegistrationError struct {
	Existing EventRegistrationRecord
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("roll number %s already registered for %q as %s",
		e.Existing.RollNumber, e.Existing.EventTitle, e.Existing.ID)
}

func (e *DuplicateRegistrationError) Unwrap() error { return ErrDuplicateRegistration }

// UpstreamKind classifies text completion failures
type UpstreamKind string

const (
	UpstreamRateLimit UpstreamKind = "rate_limit"
	UpstreamAuth      UpstreamKind = "auth"
	UpstreamNetwork   UpstreamKind = "network"
	UpstreamMalformed UpstreamKind = "malformed"
	UpstreamServer    UpstreamKind = "server"
	UpstreamDisabled  UpstreamKind = "disabled"
)

// UpstreamError is a failure of the text completion provider
type UpstreamError struct {
	Provider   string
	Kind       UpstreamKind
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s %s error", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstream}
	}
	return []error{ErrUpstream, e.Err}
}

// UpstreamKindForStatus maps an HTTP status to an upstream failure kind
func UpstreamKindForStatus(status int) UpstreamKind {
	switch {
	case status == 429:
		return UpstreamRateLimit
	case status == 401 || status == 403:
		return UpstreamAuth
	default:
		return UpstreamServer
	}
}
