// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
)

// Document is one stored entity, serialized as JSON and partitioned by kind.
type Document struct {
	Kind      string
	ID        uuid.UUID
	Version   int
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentStore is the persistence contract shared by every adapter
// (in-memory, SQLite, Postgres). There is no hard delete.
type DocumentStore interface {
	// Insert fails with domain.ErrConflict when the id already exists.
	Insert(ctx context.Context, doc Document) error
	// Get returns domain.ErrNotFound for an unknown id.
	Get(ctx context.Context, kind string, id uuid.UUID) (Document, error)
	// Update replaces doc only when the stored version equals
	// expectedVersion, otherwise it returns domain.ErrVersionConflict.
	Update(ctx context.Context, doc Document, expectedVersion int) error
	List(ctx context.Context, kind string) ([]Document, error)
	Ping(ctx context.Context) error
}

// Repository is the typed CRUD contract the services depend on.
type Repository[T any] interface {
	Create(ctx context.Context, entity *T) error
	Get(ctx context.Context, id uuid.UUID) (*T, error)
	Update(ctx context.Context, entity *T) error
	List(ctx context.Context, filter func(*T) bool) ([]*T, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// CalendarPublisher mirrors scheduled jobs to an external calendar.
type CalendarPublisher interface {
	// Publish creates or updates the event for job and returns its id.
	Publish(ctx context.Context, job *domain.ScheduledJob) (string, error)
	// Remove deletes the event. Unknown ids are not an error.
	Remove(ctx context.Context, eventID string) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Repositories bundles one repository per entity kind.
type Repositories struct {
	Leads       Repository[domain.Lead]
	Proposals   Repository[domain.Proposal]
	WorkOrders  Repository[domain.WorkOrder]
	Invoices    Repository[domain.Invoice]
	Customers   Repository[domain.Customer]
	Properties  Repository[domain.Property]
	Trees       Repository[domain.Tree]
	Employees   Repository[domain.Employee]
	Equipment   Repository[domain.Equipment]
	TimeEntries Repository[domain.TimeEntry]
	Jobs        Repository[domain.ScheduledJob]
	Settings    Repository[domain.CompanySettings]
}
