package shared

import (
	"errors"
	"regexp"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden indicates a missing capability.
	ErrForbidden = errors.New("forbidden")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// userMessenger is implemented by domain errors that are safe to show to
// callers verbatim.
type userMessenger interface {
	UserMessage() string
}

// UserSafeMessage maps an error to a message safe for external callers.
// Persistence and other internal failures collapse to a generic message;
// the detailed cause belongs in logs only.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var um userMessenger
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found"
	case errors.Is(err, ErrForbidden):
		return "You do not have permission to perform this action"
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid credentials"
	}
	return "An unexpected error occurred, please try again"
}

var secretPattern = regexp.MustCompile(`(?i)(password|passwd|secret|token|apikey|api_key|dsn)=\S+`)

// Sanitize scrubs credential-looking fragments from a message before it is
// logged or written to the activity trail.
func Sanitize(message string) string {
	return secretPattern.ReplaceAllString(message, "$1=[redacted]")
}
