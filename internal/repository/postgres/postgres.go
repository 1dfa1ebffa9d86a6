// Package postgres opens a PostgreSQL database for the shared sqlstore
// queries.
//
// Unlike SQLite, Postgres lets two transactions write at the same time, so
// version numbering needs a real lock: LockSnippet takes a transaction-scoped
// advisory lock keyed on the snippet ID. It is released automatically at
// COMMIT or ROLLBACK.
package postgres

import (
	"context"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sakif/snippetvault/internal/repository/sqlstore"
)

//go:embed migrations/*.sql
var migrations embed.FS

// New connects to dsn, applies pending migrations and returns a store.
func New(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return sqlstore.New(db, Dialect{}), nil
}

// Migrate applies any pending migrations.
func Migrate(db *sqlx.DB) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: loading migrations: %w", err)
	}

	driver, err := migratepostgres.WithInstance(db.DB, &migratepostgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres: preparing migrations: %w", err)
	}

	// Not closed: that would close db too.
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("postgres: preparing migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("postgres: running migrations: %w", err)
	}
	return nil
}

// Dialect is the Postgres flavour of sqlstore.Dialect.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) LockSnippet(ctx context.Context, tx *sqlx.Tx, snippetID string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, snippetID)
	return err
}

func (Dialect) ForUpdate() string { return " FOR UPDATE" }

// Classify maps SQLSTATE codes. Connection loss, serialization failures,
// deadlocks and admin shutdowns are worth retrying; see
// https://www.postgresql.org/docs/current/errcodes-appendix.html
func (Dialect) Classify(err error) sqlstore.ErrorClass {
	if errors.Is(err, driver.ErrBadConn) {
		return sqlstore.ClassTransient
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return sqlstore.ClassOther
	}

	switch pqErr.Code {
	case "23505":
		return sqlstore.ClassUniqueViolation
	case "23503":
		return sqlstore.ClassForeignKeyViolation
	case "40001", "40P01", "57P01", "57P03":
		return sqlstore.ClassTransient
	}
	if strings.HasPrefix(string(pqErr.Code), "08") {
		return sqlstore.ClassTransient
	}
	return sqlstore.ClassOther
}
