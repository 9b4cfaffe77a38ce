// Package kvstore holds small serialized values that must survive a restart:
// the session snapshot, the provider refresh token and cached spec documents.
package kvstore

// Store is a durable key-value store of opaque byte values.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) ([]byte, bool, error)

	// Set stores value under key, replacing any existing value.
	Set(key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}
