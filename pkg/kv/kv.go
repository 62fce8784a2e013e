// Package kv provides a small key-value store with hierarchical keys and
// per-entry expiry. Keys are string slices such as
// ["phonemes", "en-us", "9f86d0..."], stored joined by ':'.
//
// Two implementations are provided: [Badger] persists entries in a BadgerDB
// directory (or runs it in memory), and [Memory] keeps them in a map.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments in storage.
const Separator byte = ':'

// Key is a hierarchical path. Segments must not contain Separator.
type Key []string

// String returns the encoded form of k.
func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

func (k Key) encode() []byte {
	return []byte(k.String())
}

// prefix returns the encoded key followed by a separator, so that the
// prefix "a:b" does not match "a:bc". An empty key matches everything.
func (k Key) prefix() []byte {
	if len(k) == 0 {
		return nil
	}
	return append(k.encode(), Separator)
}

func decodeKey(b []byte) Key {
	return Key(strings.Split(string(b), string(Separator)))
}

// Entry is a key-value pair returned by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path-based keys.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores value under key. A positive ttl makes the entry expire
	// after that duration; zero keeps it until deleted.
	Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// List iterates over live entries under prefix in lexicographic key
	// order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Close releases resources held by the store.
	Close() error
}
