package db

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("state store is closed")

// Change describes one write to the state store
type Change struct {
	Key     string
	Value   string
	Deleted bool
	// Origin identifies the store handle that made the write
	Origin string
}

// StateStore is durable key/value storage for client session state.
// Several handles (terminals, processes) may share the same underlying
// storage; each handle has its own Origin.
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes all given keys in one atomic write
	Delete(ctx context.Context, keys ...string) error
	// Watch delivers changes made by other origins until ctx is done,
	// then closes the channel. Writes made through this handle are not
	// delivered.
	Watch(ctx context.Context) (<-chan Change, error)
	Origin() string
	Close() error
}
