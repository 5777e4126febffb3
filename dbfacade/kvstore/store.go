// Package kvstore implements the Database Facade's key-value adapter
// family (spec §4.4): set/get/delete/exists, batch variants, optional TTL,
// and namespace clearing — backed natively by Redis with an embedded
// bbolt fallback.
package kvstore

import "time"

const component = "dbfacade.kvstore"

// Store is the key-value adapter's operation set.
type Store interface {
	Namespace() string
	Backend() string
	Close() error

	// Set stores value under key, with ttl <= 0 meaning no expiry.
	Set(key string, value []byte, ttl time.Duration) error

	// Get returns key's value, or ok=false if absent or expired.
	Get(key string) ([]byte, bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// Exists reports whether key is present and unexpired.
	Exists(key string) (bool, error)

	// SetBatch stores every entry, with ttl <= 0 meaning no expiry.
	SetBatch(entries map[string][]byte, ttl time.Duration) error

	// GetBatch returns the values present among keys, omitting any absent
	// or expired key from the result.
	GetBatch(keys []string) (map[string][]byte, error)

	// DeleteBatch removes every key in keys.
	DeleteBatch(keys []string) error

	// ClearNamespace removes every key this adapter instance owns.
	ClearNamespace() error
}
