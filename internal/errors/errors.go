package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common error types for the dashboard client
var (
	// Client-side errors, raised before any network call
	ErrValidation = errors.New("validation failed")

	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSessionCorrupt   = errors.New("session snapshot corrupt")

	// Startup errors
	ErrMisconfigured = errors.New("misconfigured")

	// General errors
	ErrUnsupported = errors.New("unsupported operation")
)

// GenericMessage is shown when nothing more specific can be extracted from an error.
const GenericMessage = "Something went wrong. Please try again."

// Displayable is implemented by errors that carry a message fit for end users.
type Displayable interface {
	DisplayMessage() string
}

// DisplayMessage returns the user-facing message of the first Displayable error
// in err's chain. It always returns a non-empty string.
func DisplayMessage(err error) string {
	if err == nil {
		return GenericMessage
	}
	var d Displayable
	if errors.As(err, &d) {
		if msg := strings.TrimSpace(d.DisplayMessage()); msg != "" {
			return msg
		}
	}
	return GenericMessage
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
