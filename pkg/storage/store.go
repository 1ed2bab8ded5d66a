// Package storage is the local key-range byte store that replicas persist to, plus a typed layer for documents and sync
// checkpoints on top of it.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

type Entry struct {
	Key   string
	Value []byte
}

// Store is a flat byte store ordered by key.
type Store interface {
	// Load returns ErrNotFound for a missing key.
	Load(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete is a no-op for a missing key.
	Delete(ctx context.Context, key string) error
	// Range returns every entry whose key starts with prefix, in key order.
	Range(ctx context.Context, prefix string) ([]Entry, error)
	Close() error
}
