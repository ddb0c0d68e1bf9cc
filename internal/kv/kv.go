// Package kv provides the flat key-value persistence used for credentials and
// send state. Values are opaque bytes; callers own the encoding.
//
// Backends:
//   - memory: process-local map, used in tests and for throwaway sessions
//   - file: one file per key under a private directory
//   - sqlite: a single kv table in a local database
//   - keyring: the OS credential store
//   - valkey: a shared valkey/redis server
package kv

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("kv: key not found")

// Store is a flat string-keyed byte store.
// Delete of a missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// ValidateKey rejects keys that are empty or contain path or control characters.
func ValidateKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("kv: invalid key %q", key)
	}
	return nil
}
