// Package sqlite is the embedded document store backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/migrations"
	"github.com/treeshop/treeshop-ops-go/internal/port"
)

const timeLayout = time.RFC3339Nano

// Store keeps every entity kind in a single documents table.
type Store struct {
	db *sql.DB
}

var _ port.DocumentStore = (*Store)(nil)

// Open opens the database at path, sets recommended pragmas, validates
// connectivity and applies pending migrations. ":memory:" gives a private
// database pinned to one connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA foreign_keys = ON;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set sqlite pragmas: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if err := migrations.Up(db, migrations.DialectSQLite); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// DB exposes the handle for the migrate command.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Insert(ctx context.Context, doc port.Document) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (kind, id, version, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (kind, id) DO NOTHING`,
		doc.Kind, doc.ID.String(), doc.Version, string(doc.Data),
		doc.CreatedAt.UTC().Format(timeLayout), doc.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", doc.Kind, doc.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("insert %s %s: %w", doc.Kind, doc.ID, err)
	} else if n == 0 {
		return &domain.ErrConflict{Message: doc.Kind + " " + doc.ID.String() + " already exists"}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, kind string, id uuid.UUID) (port.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT kind, id, version, data, created_at, updated_at
		 FROM documents WHERE kind = ? AND id = ?`, kind, id.String())
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return port.Document{}, &domain.ErrNotFound{Resource: kind, ID: id.String()}
	}
	if err != nil {
		return port.Document{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return doc, nil
}

func (s *Store) Update(ctx context.Context, doc port.Document, expectedVersion int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET version = ?, data = ?, updated_at = ?
		 WHERE kind = ? AND id = ? AND version = ?`,
		doc.Version, string(doc.Data), doc.UpdatedAt.UTC().Format(timeLayout),
		doc.Kind, doc.ID.String(), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", doc.Kind, doc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %s: %w", doc.Kind, doc.ID, err)
	}
	if n == 1 {
		return nil
	}
	current, err := s.Get(ctx, doc.Kind, doc.ID)
	if err != nil {
		return err
	}
	return &domain.ErrVersionConflict{Resource: doc.Kind, ID: doc.ID.String(), Expected: expectedVersion, Actual: current.Version}
}

func (s *Store) List(ctx context.Context, kind string) ([]port.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, id, version, data, created_at, updated_at
		 FROM documents WHERE kind = ? ORDER BY created_at, id`, kind)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (port.Document, error) {
	var (
		doc                  port.Document
		id, data             string
		createdAt, updatedAt string
	)
	if err := row.Scan(&doc.Kind, &id, &doc.Version, &data, &createdAt, &updatedAt); err != nil {
		return port.Document{}, err
	}
	var err error
	if doc.ID, err = uuid.Parse(id); err != nil {
		return port.Document{}, err
	}
	if doc.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return port.Document{}, err
	}
	if doc.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return port.Document{}, err
	}
	doc.Data = []byte(data)
	return doc, nil
}
