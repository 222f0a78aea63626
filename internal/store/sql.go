package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Dialect selects the bind parameter syntax of the SQL backend.
type Dialect int

const (
	// DialectPostgres uses $1, $2, ... parameters (pgx, lib/pq)
	DialectPostgres Dialect = iota
	// DialectSQLite uses ? parameters (go-sqlite3)
	DialectSQLite
)

// Querier is an interface for executing SQL statements, allowing for testing and instrumentation
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore keeps documents in a single table of (collection, id, body) rows, body being
// the BSON bytes of the document.
type SQLStore struct {
	db      Querier
	table   string
	dialect Dialect
}

// NewSQLStore creates a new SQL store on table
func NewSQLStore(db Querier, table string, dialect Dialect) *SQLStore {
	if table == "" {
		table = "documents"
	}
	return &SQLStore{
		db:      db,
		table:   table,
		dialect: dialect,
	}
}

func (s *SQLStore) param(n int) string {
	if s.dialect == DialectSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// EnsureSchema creates the document table if it does not exist
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	body BYTEA NOT NULL,
	PRIMARY KEY (collection, id)
)`, s.table)
	if s.dialect == DialectSQLite {
		query = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	body BLOB NOT NULL,
	PRIMARY KEY (collection, id)
)`, s.table)
	}

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Fetch retrieves a document by key
func (s *SQLStore) Fetch(ctx context.Context, key Key) (bson.D, error) {
	query := fmt.Sprintf("SELECT body FROM %s WHERE collection = %s AND id = %s",
		s.table, s.param(1), s.param(2))

	var body []byte
	if err := s.db.QueryRowContext(ctx, query, key.Collection, IDString(key.ID)).Scan(&body); err != nil {
		return nil, ConvertDBError(err)
	}
	return unmarshal(body)
}

// Persist inserts or replaces a document
func (s *SQLStore) Persist(ctx context.Context, collection string, doc bson.D) error {
	id, err := IdentityOf(doc)
	if err != nil {
		return err
	}
	body, err := marshal(doc)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (collection, id, body) VALUES (%s, %s, %s) ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body",
		s.table, s.param(1), s.param(2), s.param(3))

	if _, err := s.db.ExecContext(ctx, query, collection, IDString(id), body); err != nil {
		return ConvertDBError(err)
	}
	return nil
}

// Delete removes a document by key
func (s *SQLStore) Delete(ctx context.Context, key Key) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE collection = %s AND id = %s",
		s.table, s.param(1), s.param(2))

	if _, err := s.db.ExecContext(ctx, query, key.Collection, IDString(key.ID)); err != nil {
		return ConvertDBError(err)
	}
	return nil
}

// Exists checks if a document is stored under key
func (s *SQLStore) Exists(ctx context.Context, key Key) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE collection = %s AND id = %s",
		s.table, s.param(1), s.param(2))

	var count int
	if err := s.db.QueryRowContext(ctx, query, key.Collection, IDString(key.ID)).Scan(&count); err != nil {
		return false, ConvertDBError(err)
	}
	return count > 0, nil
}
