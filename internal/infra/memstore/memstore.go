// Package memstore is a process-local document store used for development
// and tests.
package memstore

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/port"
)

// Store keeps documents in maps keyed by kind and id.
type Store struct {
	mu   sync.RWMutex
	docs map[string]map[uuid.UUID]port.Document
}

func New() *Store {
	return &Store{docs: make(map[string]map[uuid.UUID]port.Document)}
}

var _ port.DocumentStore = (*Store)(nil)

func (s *Store) Insert(_ context.Context, doc port.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.docs[doc.Kind]
	if !ok {
		byID = make(map[uuid.UUID]port.Document)
		s.docs[doc.Kind] = byID
	}
	if _, exists := byID[doc.ID]; exists {
		return &domain.ErrConflict{Message: doc.Kind + " " + doc.ID.String() + " already exists"}
	}
	byID[doc.ID] = clone(doc)
	return nil
}

func (s *Store) Get(_ context.Context, kind string, id uuid.UUID) (port.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[kind][id]
	if !ok {
		return port.Document{}, &domain.ErrNotFound{Resource: kind, ID: id.String()}
	}
	return clone(doc), nil
}

func (s *Store) Update(_ context.Context, doc port.Document, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs[doc.Kind][doc.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: doc.Kind, ID: doc.ID.String()}
	}
	if current.Version != expectedVersion {
		return &domain.ErrVersionConflict{Resource: doc.Kind, ID: doc.ID.String(), Expected: expectedVersion, Actual: current.Version}
	}
	doc.CreatedAt = current.CreatedAt
	s.docs[doc.Kind][doc.ID] = clone(doc)
	return nil
}

func (s *Store) List(_ context.Context, kind string) ([]port.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]port.Document, 0, len(s.docs[kind]))
	for _, doc := range s.docs[kind] {
		out = append(out, clone(doc))
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// clone detaches the JSON payload from the caller's buffer.
func clone(doc port.Document) port.Document {
	doc.Data = bytes.Clone(doc.Data)
	return doc
}
