package transport

import (
	"bytes"
	"context"
	"encoding/json"
)

// Doer is the part of Client the resource clients depend on.
type Doer interface {
	Do(ctx context.Context, req Request, out any) error
}

var _ Doer = (*Client)(nil)

// Page is the paginated list envelope returned by the backend. Endpoints that
// return a bare JSON array decode into Results with Count set to its length.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// pageEnvelope has no methods, so decoding into it does not recurse.
type pageEnvelope[T any] Page[T]

func (p *Page[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var results []T
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return err
		}
		*p = Page[T]{Count: len(results), Results: results}
		return nil
	}

	var env pageEnvelope[T]
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return err
	}
	*p = Page[T](env)
	return nil
}

// HasNext reports whether another page follows.
func (p Page[T]) HasNext() bool {
	return p.Next != nil && *p.Next != ""
}
