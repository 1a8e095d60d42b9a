package render

import "errors"

var (
	// ErrDimensionMismatch reports a composed frame whose dimensions do
	// not match the requested viewport. A mismatched frame would corrupt
	// the compositor's diff, so it is never returned as a valid result.
	ErrDimensionMismatch = errors.New("render: frame dimensions mismatch viewport")

	// ErrCacheClosed reports an operation on a closed cache.
	ErrCacheClosed = errors.New("render: cache is closed")
)
