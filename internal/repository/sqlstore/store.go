// Package sqlstore implements the snippet and version repositories over
// database/sql, through sqlx. Queries are written once with "?" placeholders
// and rebound per driver; what genuinely differs between backends (locking,
// error codes) comes from a Dialect supplied by the backend package.
//
// Opening a database and running migrations is the backend's job, see the
// sqlite and postgres packages.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sakif/snippetvault/internal/apperror"
	"github.com/sakif/snippetvault/internal/repository"
)

// ErrorClass is the backend-independent category of a driver error.
type ErrorClass int

const (
	ClassOther ErrorClass = iota
	ClassUniqueViolation
	ClassForeignKeyViolation
	ClassTransient
)

// Dialect captures the per-backend behaviour the shared queries need.
type Dialect interface {
	// Name prefixes error messages, e.g. "sqlite".
	Name() string

	// LockSnippet serializes version-number allocation for one snippet until
	// tx ends.
	LockSnippet(ctx context.Context, tx *sqlx.Tx, snippetID string) error

	// ForUpdate is appended to SELECTs that read a row the transaction is
	// about to rewrite.
	ForUpdate() string

	// Classify sorts a driver error into an ErrorClass.
	Classify(err error) ErrorClass
}

// Store owns the connection pool and hands out transactions. Snippets and
// Versions are the two repositories on top of it; transactions started by
// the Store are accepted by both.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	now     func() time.Time

	Snippets *SnippetStore
	Versions *VersionStore
}

// SnippetStore implements repository.SnippetRepository.
type SnippetStore struct{ *Store }

// VersionStore implements repository.VersionRepository.
type VersionStore struct{ *Store }

var (
	_ repository.SnippetRepository = (*SnippetStore)(nil)
	_ repository.VersionRepository = (*VersionStore)(nil)
	_ repository.Transactor        = (*Store)(nil)
)

// New wraps an already migrated database.
func New(db *sqlx.DB, dialect Dialect) *Store {
	s := &Store{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.Snippets = &SnippetStore{s}
	s.Versions = &VersionStore{s}
	return s
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.storageErr("pinging database", err)
	}
	return nil
}

// DB exposes the pool for backend packages and tests.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

type storeTx struct {
	tx    *sqlx.Tx
	owner *Store
}

func (t *storeTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return t.owner.storageErr("committing transaction", err)
	}
	return nil
}

func (t *storeTx) Rollback() error {
	err := t.tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return t.owner.storageErr("rolling back transaction", err)
}

// BeginTx starts a unit of work. Cancelling ctx before Commit rolls it back.
func (s *Store) BeginTx(ctx context.Context) (repository.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, s.storageErr("beginning transaction", err)
	}
	return &storeTx{tx: tx, owner: s}, nil
}

func (s *Store) unwrapTx(tx repository.Tx) (*sqlx.Tx, error) {
	t, ok := tx.(*storeTx)
	if !ok || t == nil || t.owner != s {
		return nil, fmt.Errorf("%s: transaction %T was not started by this store", s.dialect.Name(), tx)
	}
	return t.tx, nil
}

// storageErr wraps err with the backend name and, for transient failures,
// marks it apperror.ErrUnavailable.
func (s *Store) storageErr(op string, err error) error {
	if s.dialect.Classify(err) == ClassTransient {
		err = apperror.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %s: %w", s.dialect.Name(), op, err)
}
