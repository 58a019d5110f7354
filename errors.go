package tilecache

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for a lookup miss when downloading is not allowed.
var ErrNotFound = errors.New("tilecache: tile not found")

// ErrSeedTooLarge is returned by SeedBBox when the box covers more tiles than
// the configured limit.
var ErrSeedTooLarge = errors.New("tilecache: seed area too large")

// FetchError is a transport failure or a non-2xx response. StatusCode is 0
// when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: request failed with status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: unknown error", e.URL)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// StoreError wraps a failure of the persistent store. Op is one of
// "open", "get", "put", "clear".
type StoreError struct {
	Op    string
	Store string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Store, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
