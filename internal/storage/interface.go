package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by a Backend that holds no snapshot yet
	ErrNotFound = errors.New("snapshot not found")
	// ErrStorageTimeout is returned when a write does not finish within the store's write timeout
	ErrStorageTimeout = errors.New("local storage write timed out")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("snapshot store is closed")
)

// Backend persists the serialized snapshot document. Write must be atomic:
// either the new document fully replaces the old one or the old one stays.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
	// Location is a human-readable description of where the snapshot lives
	Location() string
}
