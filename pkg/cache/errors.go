package cache

import "errors"

// Sentinel errors returned by cache operations. Misses are not errors;
// they are reported as (zero, false).
var (
	// ErrClosed is returned when an operation is attempted on a closed cache
	ErrClosed = errors.New("cache: closed")

	// ErrEmptyKey is returned when Set is called with an empty key
	ErrEmptyKey = errors.New("cache: empty key")
)
