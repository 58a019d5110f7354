// Package provider defines the byte store the tile cache persists into.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// The keyspaces "tile:<db>:<store>:" and "meta:<db>:<store>" are owned by the
// store package. Several tile stores may share one provider; they stay apart
// by prefix, which is why DelPrefix exists.
package provider

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by providers that track their own lifecycle.
	ErrClosed = errors.New("provider: closed")
	// ErrRejected is returned when an admission-controlled backend drops a write.
	ErrRejected = errors.New("provider: write rejected")
)

// Provider is a minimal byte store without expiry; tile freshness is decided
// by the cache, not by the backend. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Del removes a key. Missing keys are not an error.
	Del(ctx context.Context, key string) error

	// DelPrefix removes every key starting with prefix.
	DelPrefix(ctx context.Context, prefix string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
