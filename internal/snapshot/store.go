// Package snapshot persists the last fetched snapshot of every stream.
//
// A Store encodes snapshots as indented JSON arrays and hands the bytes to a
// Backend keyed by stream name. Backends must make Write atomic for readers:
// a concurrent or later Read sees either the old or the new content, never a
// partial write.
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/bank-forwarder/internal/domain"
	"github.com/dvloznov/bank-forwarder/internal/logger"
)

// ErrNotFound is returned by a Backend when no entry exists for a key.
var ErrNotFound = errors.New("snapshot not found")

// Backend stores opaque snapshot documents by key.
type Backend interface {
	// Read returns the stored bytes for key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write replaces the stored bytes for key.
	Write(ctx context.Context, key string, data []byte) error

	// Close releases the backend's resources.
	Close() error
}

// Store loads and overwrites stream snapshots.
type Store struct {
	backend Backend
}

// NewStore creates a Store on top of backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Load returns the cached snapshot for the stream. A stream that was never
// stored yields an empty snapshot and no error. Read and decode failures are
// returned as *domain.PersistenceError.
func (s *Store) Load(ctx context.Context, stream domain.Stream) (domain.Snapshot, error) {
	data, err := s.backend.Read(ctx, stream.Name)
	if errors.Is(err, ErrNotFound) {
		log := logger.FromContext(ctx)
		log.Debug().Str("stream", stream.Name).Msg("no cached snapshot, starting empty")
		return domain.Snapshot{}, nil
	}
	if err != nil {
		return nil, &domain.PersistenceError{Stream: stream.Name, Err: fmt.Errorf("Load: read: %w", err)}
	}

	snap, err := domain.DecodeSnapshot(stream.Kind, data)
	if err != nil {
		return nil, &domain.PersistenceError{Stream: stream.Name, Err: fmt.Errorf("Load: %w", err)}
	}
	return snap, nil
}

// Save overwrites the cached snapshot for the stream. Any failure leaves the
// previous snapshot in place and is returned as *domain.PersistenceError.
func (s *Store) Save(ctx context.Context, stream domain.Stream, snap domain.Snapshot) error {
	if err := snap.Validate(stream.Kind); err != nil {
		return &domain.PersistenceError{Stream: stream.Name, Err: fmt.Errorf("Save: %w", err)}
	}
	data, err := domain.EncodeSnapshot(snap)
	if err != nil {
		return &domain.PersistenceError{Stream: stream.Name, Err: fmt.Errorf("Save: %w", err)}
	}
	if err := s.backend.Write(ctx, stream.Name, data); err != nil {
		return &domain.PersistenceError{Stream: stream.Name, Err: fmt.Errorf("Save: write: %w", err)}
	}
	return nil
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
