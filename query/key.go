package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key identifies a cache entry, e.g. Key{"projects", "detail", id}.
type Key []any

// String returns the canonical form of the key. Elements are compared by
// their JSON encoding, so maps and structs with equal content match.
func (k Key) String() string {
	return "[" + strings.Join(k.parts(), ",") + "]"
}

// HasPrefix reports whether prefix matches the leading elements of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	kp, pp := k.parts(), prefix.parts()
	for i := range pp {
		if kp[i] != pp[i] {
			return false
		}
	}
	return true
}

func (k Key) parts() []string {
	parts := make([]string, len(k))
	for i, el := range k {
		parts[i] = canonical(el)
	}
	return parts
}

func canonical(v any) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprint(v))
	}
	return string(encoded)
}
