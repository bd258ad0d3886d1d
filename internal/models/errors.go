package models

import "errors"

var (
	// ErrConfiguration marks missing or invalid configuration. It is never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrStoreCorruption marks a series whose stored state is unusable and could
	// not be reset automatically.
	ErrStoreCorruption = errors.New("store corruption")
)
