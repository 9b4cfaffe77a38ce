package utils

import "strings"

// ToStringSlice keeps the string members of a decoded JSON array. Objects
// carrying a "msg" or "message" member contribute that member instead.
func ToStringSlice(slice []any) []string {
	stringSlice := make([]string, 0, len(slice))
	for _, v := range slice {
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				stringSlice = append(stringSlice, s)
			}
		case map[string]any:
			for _, k := range []string{"msg", "message"} {
				if s, ok := t[k].(string); ok && strings.TrimSpace(s) != "" {
					stringSlice = append(stringSlice, strings.TrimSpace(s))
					break
				}
			}
		}
	}
	return stringSlice
}

// FirstNonEmpty returns the first argument that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
