// Package postgres is the server document store backed by pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/migrations"
	"github.com/treeshop/treeshop-ops-go/internal/port"
)

// Store keeps every entity kind in a single JSONB documents table.
type Store struct {
	pool *pgxpool.Pool
}

var _ port.DocumentStore = (*Store)(nil)

// Open connects to url and applies pending migrations.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, pool, "up"); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Migrate runs a goose command over the pool through database/sql.
func Migrate(ctx context.Context, pool *pgxpool.Pool, command string, args ...string) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return migrations.Run(ctx, db, migrations.DialectPostgres, command, args...)
}

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Insert(ctx context.Context, doc port.Document) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO documents (kind, id, version, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (kind, id) DO NOTHING`,
		doc.Kind, doc.ID, doc.Version, string(doc.Data), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", doc.Kind, doc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrConflict{Message: doc.Kind + " " + doc.ID.String() + " already exists"}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, kind string, id uuid.UUID) (port.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT kind, id, version, data::text, created_at, updated_at
		 FROM documents WHERE kind = $1 AND id = $2`, kind, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return port.Document{}, &domain.ErrNotFound{Resource: kind, ID: id.String()}
	}
	if err != nil {
		return port.Document{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return doc, nil
}

func (s *Store) Update(ctx context.Context, doc port.Document, expectedVersion int) error {
	// The row lock taken by UPDATE makes the version check atomic; the
	// follow-up read only classifies a miss.
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET version = $1, data = $2, updated_at = $3
		 WHERE kind = $4 AND id = $5 AND version = $6`,
		doc.Version, string(doc.Data), doc.UpdatedAt, doc.Kind, doc.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", doc.Kind, doc.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	current, err := s.Get(ctx, doc.Kind, doc.ID)
	if err != nil {
		return err
	}
	return &domain.ErrVersionConflict{Resource: doc.Kind, ID: doc.ID.String(), Expected: expectedVersion, Actual: current.Version}
}

func (s *Store) List(ctx context.Context, kind string) ([]port.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, id, version, data::text, created_at, updated_at
		 FROM documents WHERE kind = $1 ORDER BY created_at, id`, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var out []port.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", kind, err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func scanDocument(row pgx.Row) (port.Document, error) {
	var (
		doc                  port.Document
		data                 string
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&doc.Kind, &doc.ID, &doc.Version, &data, &createdAt, &updatedAt); err != nil {
		return port.Document{}, err
	}
	doc.Data = []byte(data)
	doc.CreatedAt = createdAt.UTC()
	doc.UpdatedAt = updatedAt.UTC()
	return doc, nil
}
