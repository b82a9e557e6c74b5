package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"drivemeta/internal/database/migrations"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// Store is the backing store adapter. It owns the SQLite connection pool
// and exposes the engine's read path directly; mutations run through InTx.
type Store struct {
	Queries
	db   *sql.DB
	path string
}

// Tx wraps a single mutation transaction. All writes of one import or
// delete happen on exactly one Tx and either commit together or not at all.
type Tx struct {
	Queries
	tx *sql.Tx
}

// Open opens and configures a SQLite database at path.
// path can be a file path or ":memory:" for an in-memory database.
//
// Transactions begin with BEGIN IMMEDIATE: a deferred begin would take
// its read snapshot before the first write, and when another writer
// commits in between, the snapshot upgrade fails immediately instead of
// waiting out busy_timeout. With the write lock taken up front,
// concurrent mutations on disjoint branches queue on busy_timeout and
// both commit.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&_txlock=immediate"
	} else {
		dsn += "?_txlock=immediate"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring database: %w", err)
		}
	}

	return &Store{Queries: Queries{q: db}, db: db, path: path}, nil
}

// Path returns the database file path (or ":memory:").
func (s *Store) Path() string { return s.path }

// MigrateUp brings the schema to the latest version.
func (s *Store) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the schema is up-to-date without changing it.
func (s *Store) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// InTx runs fn inside a transaction. The transaction is rolled back on
// any error, so a failed mutation never leaves partial writes behind.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{Queries: Queries{q: tx}, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// IsForeignKeyViolation reports whether err is a referential-integrity
// failure, which the engine surfaces when an import references a parent
// id that does not exist.
func IsForeignKeyViolation(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code == sqlite3.ErrConstraint &&
		serr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// IsUniqueViolation reports whether err is a unique or primary key
// constraint failure.
func IsUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code == sqlite3.ErrConstraint &&
		(serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}
