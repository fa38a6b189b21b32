// Package store turns a port.DocumentStore into typed repositories with
// optimistic concurrency on the entity version.
package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/port"
)

// Repository stores one entity kind as JSON documents.
type Repository[T any, P interface {
	*T
	domain.Entity
}] struct {
	docs port.DocumentStore
	kind string
}

// New creates a repository for kind, e.g. New[domain.Lead](docs, domain.KindLead).
func New[T any, P interface {
	*T
	domain.Entity
}](docs port.DocumentStore, kind string) *Repository[T, P] {
	return &Repository[T, P]{docs: docs, kind: kind}
}

var _ port.Repository[domain.Lead] = (*Repository[domain.Lead, *domain.Lead])(nil)

// Create stores a new entity at version 1.
func (r *Repository[T, P]) Create(ctx context.Context, entity *T) error {
	meta := P(entity).Base()
	meta.Version = 1
	doc, err := r.encode(entity)
	if err != nil {
		meta.Version = 0
		return err
	}
	if err := r.docs.Insert(ctx, doc); err != nil {
		meta.Version = 0
		return err
	}
	return nil
}

// Get loads the entity or returns domain.ErrNotFound.
func (r *Repository[T, P]) Get(ctx context.Context, id uuid.UUID) (*T, error) {
	doc, err := r.docs.Get(ctx, r.kind, id)
	if err != nil {
		return nil, err
	}
	return r.decode(doc)
}

// Update writes entity when the stored version still matches the one it
// was read at, and bumps the version. A stale entity gets
// domain.ErrVersionConflict and keeps its version.
func (r *Repository[T, P]) Update(ctx context.Context, entity *T) error {
	meta := P(entity).Base()
	expected := meta.Version
	meta.Version = expected + 1
	doc, err := r.encode(entity)
	if err == nil {
		err = r.docs.Update(ctx, doc, expected)
	}
	if err != nil {
		meta.Version = expected
		return err
	}
	return nil
}

// List returns a snapshot of every entity matching filter, ordered by
// creation time then id. A nil filter matches everything.
func (r *Repository[T, P]) List(ctx context.Context, filter func(*T) bool) ([]*T, error) {
	docs, err := r.docs.List(ctx, r.kind)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(docs, func(a, b port.Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	out := make([]*T, 0, len(docs))
	for _, doc := range docs {
		entity, err := r.decode(doc)
		if err != nil {
			return nil, err
		}
		if filter == nil || filter(entity) {
			out = append(out, entity)
		}
	}
	return out, nil
}

func (r *Repository[T, P]) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := r.docs.Get(ctx, r.kind, id)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (r *Repository[T, P]) encode(entity *T) (port.Document, error) {
	meta := P(entity).Base()
	data, err := json.Marshal(entity)
	if err != nil {
		return port.Document{}, fmt.Errorf("encode %s %s: %w", r.kind, meta.ID, err)
	}
	return port.Document{
		Kind:      r.kind,
		ID:        meta.ID,
		Version:   meta.Version,
		Data:      data,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
	}, nil
}

func (r *Repository[T, P]) decode(doc port.Document) (*T, error) {
	entity := new(T)
	if err := json.Unmarshal(doc.Data, P(entity)); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", r.kind, doc.ID, err)
	}
	P(entity).Base().Version = doc.Version
	return entity, nil
}
