package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"cryptoMonitor/internal/model"
	"cryptoMonitor/internal/storage"
)

// Store provides Postgres persistence for asset snapshots over one connection.
// The connection is not safe for concurrent use; callers serialize access.
type Store struct {
	conn   *pgx.Conn
	schema storage.Schema
}

func NewStore(ctx context.Context, dsn string, schema storage.Schema) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{conn: conn, schema: schema}, nil
}

func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close(context.Background())
}

// EnsureTable creates the asset table if it does not exist.
func (s *Store) EnsureTable(ctx context.Context, assetID string) error {
	stmt, err := createTableSQL(s.schema, assetID)
	if err != nil {
		return &storage.SchemaError{AssetID: assetID, Err: err}
	}
	if _, err := s.conn.Exec(ctx, stmt); err != nil {
		return &storage.SchemaError{AssetID: assetID, Err: err}
	}
	return nil
}

// Insert appends one snapshot row. Each statement commits on its own.
func (s *Store) Insert(ctx context.Context, assetID string, snap model.Snapshot) error {
	stmt, err := insertSQL(s.schema, assetID)
	if err != nil {
		return &storage.WriteError{AssetID: assetID, Err: err}
	}
	if _, err := s.conn.Exec(ctx, stmt, snap.Values(s.schema.Shape)...); err != nil {
		return &storage.WriteError{AssetID: assetID, Err: err}
	}
	return nil
}

func quotedTable(assetID string) (string, error) {
	table, err := storage.TableName(assetID)
	if err != nil {
		return "", err
	}
	return pgx.Identifier{table}.Sanitize(), nil
}

func createTableSQL(schema storage.Schema, assetID string) (string, error) {
	table, err := quotedTable(assetID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	b.WriteString("\tid BIGSERIAL PRIMARY KEY,\n")
	b.WriteString("\t\"timestamp\" TIMESTAMPTZ NOT NULL DEFAULT now()")
	for _, col := range schema.Columns() {
		fmt.Fprintf(&b, ",\n\t%s %s", pgx.Identifier{col.Name}.Sanitize(), col.Type)
	}
	b.WriteString("\n)")
	return b.String(), nil
}

func insertSQL(schema storage.Schema, assetID string) (string, error) {
	table, err := quotedTable(assetID)
	if err != nil {
		return "", err
	}

	names := schema.ColumnNames()
	quoted := make([]string, 0, len(names))
	for _, name := range names {
		quoted = append(quoted, pgx.Identifier{name}.Sanitize())
	}
	placeholders := storage.Placeholders(len(names), func(i int) string {
		return fmt.Sprintf("$%d", i)
	})
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(quoted, ", "), placeholders), nil
}

var _ storage.Storage = (*Store)(nil)
