package cache

import "errors"

// Caller errors: invalid configuration or a missing required namespace.
// These are returned directly to the call site; the operation performs no
// state change.
var (
	ErrEmptyNamespace     = errors.New("mudis: namespace must not be empty")
	ErrNamespaceDelimiter = errors.New("mudis: namespace must not contain ':'")
	ErrInvalidConfig      = errors.New("mudis: invalid configuration")
	ErrShardCountFixed    = errors.New("mudis: shard_count cannot change without Reset")
	ErrNoLoader           = errors.New("mudis: fetch called without a loader block")
	ErrClosed             = errors.New("mudis: cache is closed")
)
