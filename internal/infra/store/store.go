// Package store provides SQLite persistence for download history and the watch list.
package store

import (
	"context"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	zlog "github.com/rs/zerolog/log"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("record already exists")
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS history (
		id          TEXT PRIMARY KEY,
		item_id     TEXT NOT NULL,
		source_url  TEXT NOT NULL,
		kind        TEXT NOT NULL,
		title       TEXT NOT NULL DEFAULT '',
		artist      TEXT NOT NULL DEFAULT '',
		album       TEXT NOT NULL DEFAULT '',
		quality     TEXT NOT NULL,
		format      TEXT NOT NULL,
		status      TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		added_at    TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_finished ON history (finished_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS watches (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		kind         TEXT NOT NULL,
		url          TEXT NOT NULL,
		source_id    TEXT NOT NULL UNIQUE,
		added_at     TIMESTAMP NOT NULL,
		last_checked TIMESTAMP,
		active       BOOLEAN NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS seen_media (
		watch_id TEXT NOT NULL,
		media_id TEXT NOT NULL,
		seen_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (watch_id, media_id)
	)`,
}

// Store is a SQLite-backed repository.
type Store struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

// NewSQLiteStore opens (creating if needed) the database at path and runs migrations.
// Use ":memory:" for a private in-memory database.
func NewSQLiteStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}
	// SQLite serializes writers; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	s := &Store{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	zlog.Info().Msgf("store opened: path=%s", path)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migration %d failed", i)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// exec runs a built statement.
func (s *Store) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "failed to build query")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, errors.WithStack(ErrDuplicate)
		}
		return 0, errors.Wrap(err, "query failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read affected rows")
	}
	return n, nil
}

func (s *Store) selectInto(ctx context.Context, dest any, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build query")
	}
	return errors.Wrap(s.db.SelectContext(ctx, dest, query, args...), "query failed")
}

func (s *Store) getInto(ctx context.Context, dest any, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build query")
	}
	return s.db.GetContext(ctx, dest, query, args...)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
