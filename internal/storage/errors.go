package storage

import (
	"errors"
	"fmt"
)

// ErrUnsafeAssetID is returned for asset ids that cannot be used in a table name.
var ErrUnsafeAssetID = errors.New("unsafe asset id")

// SchemaError reports a failure to provision an asset table.
type SchemaError struct {
	AssetID string
	Err     error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("ensure table for %q: %v", e.AssetID, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// WriteError reports a failure to append a snapshot row.
type WriteError struct {
	AssetID string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("insert snapshot for %q: %v", e.AssetID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ConnectionError reports that a backend could not be opened.
type ConnectionError struct {
	Backend string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("open %s store: %v", e.Backend, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
