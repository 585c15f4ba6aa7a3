package sqlstore

import (
	"context"
	"fmt"
	"strconv"

	"lendinglibrary/internal/store"
)

const schemaVersion = 1

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS authors (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		date_of_birth DATE
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		genre TEXT NOT NULL DEFAULT '',
		price NUMERIC(12, 2),
		author_id BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		phone_number TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS member_loans (
		member_id BIGINT NOT NULL,
		position INTEGER NOT NULL,
		loan_id BIGINT NOT NULL,
		PRIMARY KEY (member_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id BIGSERIAL PRIMARY KEY,
		member_id BIGINT NOT NULL,
		book_id BIGINT NOT NULL,
		lend_date DATE,
		return_date DATE
	)`,
	`CREATE INDEX IF NOT EXISTS loans_member_id_idx ON loans (member_id)`,
}

// No foreign keys: deleting a referenced author, book or member is allowed.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS authors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT '',
		date_of_birth DATE
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL DEFAULT '',
		genre TEXT NOT NULL DEFAULT '',
		price TEXT,
		author_id INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		phone_number TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS member_loans (
		member_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		loan_id INTEGER NOT NULL,
		PRIMARY KEY (member_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		member_id INTEGER NOT NULL,
		book_id INTEGER NOT NULL,
		lend_date DATE,
		return_date DATE
	)`,
	`CREATE INDEX IF NOT EXISTS loans_member_id_idx ON loans (member_id)`,
}

// Migrate creates any missing tables and records the schema version. It is
// safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "store.migrate")
	defer span.End()

	return s.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		txs := tx.(*Store)
		for _, stmt := range txs.dialect.schema {
			if _, err := txs.ext.ExecContext(ctx, stmt); err != nil {
				return s.fail(span, "apply schema", err)
			}
		}

		query, args, err := txs.sq.Insert("schema_meta").
			Columns("key", "value").
			Values("schema_version", strconv.Itoa(schemaVersion)).
			Suffix("ON CONFLICT (key) DO UPDATE SET value = excluded.value").
			ToSql()
		if err != nil {
			return fmt.Errorf("build schema version query: %w", err)
		}
		if _, err := txs.ext.ExecContext(ctx, query, args...); err != nil {
			return s.fail(span, "record schema version", err)
		}

		s.logger.Info("schema ready", "version", schemaVersion, "db", s.dialect.system)
		return nil
	})
}

// SchemaVersion reports the recorded schema version, 0 when no version row exists.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	query, args, err := s.sq.Select("value").From("schema_meta").Where("key = ?", "schema_version").ToSql()
	if err != nil {
		return 0, err
	}

	var value string
	if err := s.ext.QueryRowxContext(ctx, query, args...).Scan(&value); err != nil {
		if mapError(err) == store.ErrNoRecord {
			return 0, nil
		}
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return strconv.Atoi(value)
}
