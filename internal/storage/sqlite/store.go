package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cryptoMonitor/internal/model"
	"cryptoMonitor/internal/storage"
)

// Store persists asset snapshots to a local SQLite file.
type Store struct {
	db     *sql.DB
	schema storage.Schema
}

func NewStore(ctx context.Context, path string, schema storage.Schema) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	return &Store{db: db, schema: schema}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for read-side tooling and tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) EnsureTable(ctx context.Context, assetID string) error {
	stmt, err := createTableSQL(s.schema, assetID)
	if err != nil {
		return &storage.SchemaError{AssetID: assetID, Err: err}
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return &storage.SchemaError{AssetID: assetID, Err: err}
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, assetID string, snap model.Snapshot) error {
	stmt, err := insertSQL(s.schema, assetID)
	if err != nil {
		return &storage.WriteError{AssetID: assetID, Err: err}
	}
	if _, err := s.db.ExecContext(ctx, stmt, sqliteValues(snap.Values(s.schema.Shape))...); err != nil {
		return &storage.WriteError{AssetID: assetID, Err: err}
	}
	return nil
}

// sqliteValues stores timestamps as text in the same layout CURRENT_TIMESTAMP uses.
func sqliteValues(values []interface{}) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		switch typed := v.(type) {
		case time.Time:
			out[i] = typed.UTC().Format("2006-01-02 15:04:05.999999")
		default:
			out[i] = v
		}
	}
	return out
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func createTableSQL(schema storage.Schema, assetID string) (string, error) {
	table, err := storage.TableName(assetID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quote(table))
	b.WriteString("\tid INTEGER PRIMARY KEY AUTOINCREMENT,\n")
	b.WriteString("\t\"timestamp\" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP")
	for _, col := range schema.Columns() {
		fmt.Fprintf(&b, ",\n\t%s %s", quote(col.Name), col.Type)
	}
	b.WriteString("\n)")
	return b.String(), nil
}

func insertSQL(schema storage.Schema, assetID string) (string, error) {
	table, err := storage.TableName(assetID)
	if err != nil {
		return "", err
	}

	names := schema.ColumnNames()
	quoted := make([]string, 0, len(names))
	for _, name := range names {
		quoted = append(quoted, quote(name))
	}
	placeholders := storage.Placeholders(len(names), func(int) string { return "?" })
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table), strings.Join(quoted, ", "), placeholders), nil
}

var _ storage.Storage = (*Store)(nil)
