// Package sqlite opens a SQLite database for the shared sqlstore queries.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code and works everywhere Go works.
//
// CONNECTION SETTINGS:
// PRAGMAs set with Exec only apply to the one pooled connection that ran them.
// Passing them as _pragma parameters in the DSN makes the driver apply them to
// every connection it opens:
//   - foreign_keys(1)     deleting a snippet cascades to its versions
//   - busy_timeout(10000) writers wait for the lock instead of failing at once
//   - journal_mode(WAL)   readers keep going while a write is in progress
//
// _txlock=immediate makes every transaction start with BEGIN IMMEDIATE, so it
// takes the database write lock up front. Two transactions numbering versions
// of the same snippet therefore run one after the other; that is the whole of
// the SQLite locking story and why LockSnippet has nothing to do.
package sqlite

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/snippetvault/internal/repository/sqlstore"
)

const driverName = "sqlite"

//go:embed migrations/*.sql
var migrations embed.FS

func init() {
	// sqlx only knows the placeholder style of drivers it has heard of.
	sqlx.BindDriver(driverName, sqlx.QUESTION)
}

// DSN builds the connection string for a database file. ":memory:" is passed
// through unchanged.
func DSN(path string) string {
	if path == ":memory:" {
		return path
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(10000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// New opens the database at path, brings the schema up to date and returns a
// store over it.
//
//	store, err := sqlite.New("data/snippets.db")
//	if err != nil { ... }
//	defer store.Close()
func New(path string) (*sqlstore.Store, error) {
	db, err := sqlx.Open(driverName, DSN(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if path == ":memory:" {
		// Every new connection to ":memory:" is a brand new, empty database.
		// One connection keeps the pool looking at the same one.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return sqlstore.New(db, Dialect{}), nil
}

// Migrate applies any pending migrations. Running it on an up-to-date
// database does nothing.
func Migrate(db *sqlx.DB) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: loading migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite: preparing migrations: %w", err)
	}

	// m.Close would close db as well, so m is simply dropped.
	m, err := migrate.NewWithInstance("iofs", source, driverName, driver)
	if err != nil {
		return fmt.Errorf("sqlite: preparing migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return nil
}

// Dialect is the SQLite flavour of sqlstore.Dialect.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlite" }

// LockSnippet is a no-op: the transaction already holds the write lock.
func (Dialect) LockSnippet(context.Context, *sqlx.Tx, string) error { return nil }

// ForUpdate is empty because SQLite has no row locks.
func (Dialect) ForUpdate() string { return "" }

func (Dialect) Classify(err error) sqlstore.ErrorClass {
	var sqliteErr *sqlitedriver.Error
	if !errors.As(err, &sqliteErr) {
		return sqlstore.ClassOther
	}

	code := sqliteErr.Code()
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return sqlstore.ClassUniqueViolation
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return sqlstore.ClassForeignKeyViolation
	}

	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return sqlstore.ClassTransient
	case sqlite3.SQLITE_CONSTRAINT:
		// Without extended result codes only the message tells them apart.
		msg := sqliteErr.Error()
		switch {
		case strings.Contains(msg, "UNIQUE"):
			return sqlstore.ClassUniqueViolation
		case strings.Contains(msg, "FOREIGN KEY"):
			return sqlstore.ClassForeignKeyViolation
		}
	}
	return sqlstore.ClassOther
}
