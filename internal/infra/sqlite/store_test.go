package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/sqlite"
	"github.com/treeshop/treeshop-ops-go/internal/port"
	"github.com/treeshop/treeshop-ops-go/internal/store"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func document(kind string, version int, at time.Time) port.Document {
	return port.Document{
		Kind:      kind,
		ID:        uuid.New(),
		Version:   version,
		Data:      []byte(`{"name":"stump grinder"}`),
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestStore_InsertAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 10, 9, 0, 0, 123456789, time.UTC)

	doc := document(domain.KindEquipment, 1, at)
	if err := s.Insert(ctx, doc); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := s.Get(ctx, domain.KindEquipment, doc.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Version != 1 || string(got.Data) != string(doc.Data) {
		t.Errorf("unexpected document %+v", got)
	}
	if !got.CreatedAt.Equal(at) {
		t.Errorf("expected created_at %v, got %v", at, got.CreatedAt)
	}
}

func TestStore_InsertDuplicate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	doc := document(domain.KindEquipment, 1, time.Now())
	_ = s.Insert(ctx, doc)
	err := s.Insert(ctx, doc)
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := openStore(t)

	_, err := s.Get(context.Background(), domain.KindLead, uuid.New())
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_UpdateCompareAndSwap(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	doc := document(domain.KindEquipment, 1, time.Now())
	_ = s.Insert(ctx, doc)

	doc.Version = 2
	doc.Data = []byte(`{"name":"chipper"}`)
	if err := s.Update(ctx, doc, 1); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	doc.Version = 2
	err := s.Update(ctx, doc, 1)
	var conflict *domain.ErrVersionConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if conflict.Actual != 2 {
		t.Errorf("expected actual version 2, got %d", conflict.Actual)
	}

	got, _ := s.Get(ctx, domain.KindEquipment, doc.ID)
	if string(got.Data) != `{"name":"chipper"}` {
		t.Errorf("unexpected data %s", got.Data)
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	s := openStore(t)

	err := s.Update(context.Background(), document(domain.KindLead, 2, time.Now()), 1)
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListByKind(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now()

	_ = s.Insert(ctx, document(domain.KindEquipment, 1, now))
	_ = s.Insert(ctx, document(domain.KindEquipment, 1, now.Add(time.Minute)))
	_ = s.Insert(ctx, document(domain.KindLead, 1, now))

	docs, err := s.List(ctx, domain.KindEquipment)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
}

func TestStore_BacksRepository(t *testing.T) {
	s := openStore(t)
	repo := store.New[domain.Lead](s, domain.KindLead)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	l, err := domain.NewLead(domain.LeadDetails{CustomerName: "Dana Reyes", CustomerPhone: "555-0142"}, "office", now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	_ = l.Advance("quoted", "office", now.Add(time.Hour))
	if err := repo.Update(ctx, l); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := repo.Get(ctx, l.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Version != 2 || got.Stage() != domain.StageProposal {
		t.Errorf("expected version 2 at PROPOSAL, got %d at %s", got.Version, got.Stage())
	}
}
