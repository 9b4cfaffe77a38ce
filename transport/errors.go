package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/jrsteele09/go-api-dashboard/internal/utils"
)

// Kind classifies a transport failure.
type Kind string

const (
	KindNetwork Kind = "network" // No response was received
	KindClient  Kind = "client"  // 4xx other than 401/403
	KindServer  Kind = "server"  // 5xx
	KindAuth    Kind = "auth"    // 401 or 403
	KindDecode  Kind = "decode"  // Success status with a body that could not be decoded
	KindEncode  Kind = "encode"  // The request body could not be built; nothing was sent
)

const (
	networkMessage   = "Network error. Please check your connection and try again."
	decodeMessage    = "Unexpected response from the server."
	encodeMessage    = "The request could not be prepared. Please check the submitted data."
	authMessage      = "Your session has expired or you do not have access. Please sign in again."
	serverMessage    = "The server encountered an error. Please try again later."
	maxRawMessageLen = 300
)

// Error is the single normalized shape of every failed call made through the transport.
type Error struct {
	Kind       Kind
	StatusCode int    // 0 when no response was received
	Message    string // Human readable, never empty
	Body       []byte // Raw response body, if any
	Err        error  // Underlying cause, if any
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
		}
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s error (%d): %s", e.Kind, e.StatusCode, e.Message)
}

// DisplayMessage implements errors.Displayable.
func (e *Error) DisplayMessage() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsAuth reports whether the backend rejected the credential.
func (e *Error) IsAuth() bool {
	return e.Kind == KindAuth
}

// encodeError reports a request that failed before it was sent.
func encodeError(cause error) *Error {
	return &Error{Kind: KindEncode, Message: encodeMessage, Err: cause}
}

// Normalize builds an Error from whatever is known about a failed call. It is
// total: any combination of inputs yields an Error with a non-empty Message.
func Normalize(status int, body []byte, cause error) *Error {
	e := &Error{
		Kind:       kindFor(status),
		StatusCode: status,
		Body:       body,
		Err:        cause,
	}
	if e.Kind != KindDecode {
		e.Message = messageFromBody(body)
	}
	if e.Message == "" {
		e.Message = fallbackMessage(e.Kind, status)
	}
	return e
}

func kindFor(status int) Kind {
	switch {
	case status == 0:
		return KindNetwork
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindClient
	default:
		return KindDecode
	}
}

func fallbackMessage(kind Kind, status int) string {
	switch kind {
	case KindNetwork:
		return networkMessage
	case KindDecode:
		return decodeMessage
	case KindAuth:
		return authMessage
	case KindServer:
		return serverMessage
	}
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("Request failed: %s", text)
	}
	return fmt.Sprintf("Request failed with status %d", status)
}

// messageFromBody prefers a server supplied detail/message field and falls back
// to the raw body text.
func messageFromBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		raw := string(trimmed)
		if looksLikeHTML(raw) {
			return ""
		}
		return truncate(raw, maxRawMessageLen)
	}
	return truncate(messageFromValue(decoded), maxRawMessageLen)
}

func messageFromValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		return strings.Join(utils.ToStringSlice(t), "; ")
	case map[string]any:
		for _, k := range []string{"detail", "message", "error_description", "error"} {
			if msg := messageFromValue(t[k]); msg != "" {
				return msg
			}
		}
		return fieldErrors(t)
	}
	return ""
}

// fieldErrors flattens {"name": ["This field is required."]} style bodies.
func fieldErrors(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		list, ok := m[k].([]any)
		if !ok {
			continue
		}
		if msgs := utils.ToStringSlice(list); len(msgs) > 0 {
			parts = append(parts, k+": "+strings.Join(msgs, " "))
		}
	}
	return strings.Join(parts, "; ")
}

func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
