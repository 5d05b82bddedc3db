package storage

import (
	"context"

	"cryptoMonitor/internal/model"
)

// Storage provisions per-asset tables and appends snapshots to them.
type Storage interface {
	// EnsureTable creates the asset table if it does not exist yet.
	EnsureTable(ctx context.Context, assetID string) error
	// Insert appends one snapshot row and commits it on its own.
	Insert(ctx context.Context, assetID string, snap model.Snapshot) error
	Close() error
}
