package identity

import (
	"errors"
	"fmt"
	"strings"
)

// Code is the stable identity error taxonomy surfaced to callers.
type Code string

const (
	CodeEmailInUse         Code = "EmailInUse"
	CodeInvalidEmail       Code = "InvalidEmail"
	CodeWeakPassword       Code = "WeakPassword"
	CodeInvalidCredentials Code = "InvalidCredentials"
	CodeTooManyAttempts    Code = "TooManyAttempts"
	CodeAccountDisabled    Code = "AccountDisabled"
	CodeUnknown            Code = "Unknown"
)

var messages = map[Code]string{
	CodeEmailInUse:         "This email is already registered. Please sign in instead.",
	CodeInvalidEmail:       "Please enter a valid email address.",
	CodeWeakPassword:       "Password is too weak. Please choose a stronger password.",
	CodeInvalidCredentials: "Invalid email or password.",
	CodeTooManyAttempts:    "Too many attempts. Please try again later.",
	CodeAccountDisabled:    "This account has been disabled. Please contact support.",
	CodeUnknown:            "Authentication failed. Please try again.",
}

// Sentinels for errors.Is comparisons. Matching is by Code.
var (
	ErrEmailInUse         = &Error{Code: CodeEmailInUse}
	ErrInvalidEmail       = &Error{Code: CodeInvalidEmail}
	ErrWeakPassword       = &Error{Code: CodeWeakPassword}
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials}
	ErrTooManyAttempts    = &Error{Code: CodeTooManyAttempts}
	ErrAccountDisabled    = &Error{Code: CodeAccountDisabled}
	ErrUnknown            = &Error{Code: CodeUnknown}
)

// Error is an identity failure with a display message fit for end users.
type Error struct {
	Code         Code
	Message      string
	ProviderCode string // Raw code reported by the provider, if any
	Err          error
}

// NewError builds an Error carrying the stable message for code.
func NewError(code Code, cause error) *Error {
	return &Error{Code: code, Message: MessageFor(code), Err: cause}
}

// FromProviderCode maps a provider specific code to an Error.
func FromProviderCode(providerCode string, cause error) *Error {
	e := NewError(MapProviderCode(providerCode), cause)
	e.ProviderCode = providerCode
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("identity %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("identity %s", e.Code)
}

// DisplayMessage implements errors.Displayable.
func (e *Error) DisplayMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return MessageFor(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// MessageFor returns the stable display message for code.
func MessageFor(code Code) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return messages[CodeUnknown]
}

var providerCodes = map[string]Code{
	"email_already_in_use": CodeEmailInUse,
	"email_exists":         CodeEmailInUse,
	"email_in_use":         CodeEmailInUse,
	"user_exists":          CodeEmailInUse,

	"invalid_email": CodeInvalidEmail,
	"email_invalid": CodeInvalidEmail,

	"weak_password":                       CodeWeakPassword,
	"password_too_weak":                   CodeWeakPassword,
	"password_does_not_meet_requirements": CodeWeakPassword,

	"invalid_grant":             CodeInvalidCredentials,
	"invalid_credentials":       CodeInvalidCredentials,
	"invalid_credential":        CodeInvalidCredentials,
	"invalid_login_credentials": CodeInvalidCredentials,
	"invalid_password":          CodeInvalidCredentials,
	"wrong_password":            CodeInvalidCredentials,
	"user_not_found":            CodeInvalidCredentials,
	"email_not_found":           CodeInvalidCredentials,

	"too_many_requests":           CodeTooManyAttempts,
	"too_many_attempts":           CodeTooManyAttempts,
	"too_many_attempts_try_later": CodeTooManyAttempts,
	"slow_down":                   CodeTooManyAttempts,

	"user_disabled":    CodeAccountDisabled,
	"account_disabled": CodeAccountDisabled,
	"account_locked":   CodeAccountDisabled,
}

// MapProviderCode normalizes provider codes such as "auth/email-already-in-use",
// "EMAIL_EXISTS" or "WEAK_PASSWORD : Password should be..." and maps them to a Code.
func MapProviderCode(providerCode string) Code {
	normalized := strings.TrimSpace(providerCode)
	if i := strings.IndexAny(normalized, ": "); i >= 0 {
		normalized = normalized[:i]
	}
	normalized = strings.ToLower(normalized)
	normalized = strings.TrimPrefix(normalized, "auth/")
	normalized = strings.ReplaceAll(normalized, "-", "_")

	if code, ok := providerCodes[normalized]; ok {
		return code
	}
	return CodeUnknown
}

// asError converts any provider failure into an *Error.
func asError(err error) *Error {
	if err == nil {
		return nil
	}
	var identityErr *Error
	if errors.As(err, &identityErr) {
		return identityErr
	}
	return NewError(CodeUnknown, err)
}
