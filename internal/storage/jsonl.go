package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cryptoMonitor/internal/model"
)

// jsonlRow is one stored line; StoredAt is assigned by the writer.
type jsonlRow struct {
	StoredAt string `json:"stored_at"`
	model.Snapshot
}

// JsonlStorage appends snapshots to one JSONL file per asset.
type JsonlStorage struct {
	dir   string
	shape model.Shape
	mu    sync.Mutex
	now   func() time.Time
}

func NewJsonlStorage(dir string, shape model.Shape) *JsonlStorage {
	return &JsonlStorage{dir: dir, shape: shape, now: time.Now}
}

func (s *JsonlStorage) path(assetID string) (string, error) {
	table, err := TableName(assetID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, table+".jsonl"), nil
}

// EnsureTable creates the asset file if absent.
func (s *JsonlStorage) EnsureTable(_ context.Context, assetID string) error {
	path, err := s.path(assetID)
	if err != nil {
		return &SchemaError{AssetID: assetID, Err: err}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &SchemaError{AssetID: assetID, Err: fmt.Errorf("create output dir: %w", err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &SchemaError{AssetID: assetID, Err: fmt.Errorf("open output file: %w", err)}
	}
	return file.Close()
}

// Insert appends one snapshot as a JSON line.
func (s *JsonlStorage) Insert(_ context.Context, assetID string, snap model.Snapshot) error {
	path, err := s.path(assetID)
	if err != nil {
		return &WriteError{AssetID: assetID, Err: err}
	}

	if s.shape == model.ShapeMinimal {
		snap = model.Snapshot{AssetID: snap.AssetID, Price: snap.Price}
	}
	line, err := json.Marshal(jsonlRow{
		StoredAt: s.now().UTC().Format(time.RFC3339Nano),
		Snapshot: snap,
	})
	if err != nil {
		return &WriteError{AssetID: assetID, Err: fmt.Errorf("marshal snapshot: %w", err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &WriteError{AssetID: assetID, Err: fmt.Errorf("open output file: %w", err)}
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return &WriteError{AssetID: assetID, Err: fmt.Errorf("write snapshot: %w", err)}
	}
	if err := writer.WriteByte('\n'); err != nil {
		return &WriteError{AssetID: assetID, Err: fmt.Errorf("write newline: %w", err)}
	}
	if err := writer.Flush(); err != nil {
		return &WriteError{AssetID: assetID, Err: fmt.Errorf("flush output: %w", err)}
	}
	return nil
}

func (s *JsonlStorage) Close() error { return nil }

var _ Storage = (*JsonlStorage)(nil)
