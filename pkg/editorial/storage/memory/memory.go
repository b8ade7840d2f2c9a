package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/newsroomkit/editorial/pkg/editorial"
)

// Store is an in-memory implementation of the editorial.ImageStore interface.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New creates a new in-memory image store.
func New() editorial.ImageStore {
	return &Store{
		objects: make(map[string][]byte),
	}
}

// Upload stores the bytes directly.
func (s *Store) Upload(ctx context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = data
	return nil
}

// Download returns the stored bytes.
func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.objects[key]
	if !exists {
		return nil, errors.New("object not found")
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the stored bytes.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[key]; !exists {
		return errors.New("object not found")
	}

	delete(s.objects, key)
	return nil
}

// GetURL is unsupported for the in-memory store.
func (s *Store) GetURL(ctx context.Context, key string) (string, error) {
	return "", errors.New("direct download required for memory store")
}
