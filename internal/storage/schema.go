package storage

import (
	"fmt"
	"regexp"
	"strings"

	"cryptoMonitor/internal/model"
)

const (
	tableSuffix = "_data"
	// maxIdentifierLen is the Postgres identifier limit (NAMEDATALEN-1).
	maxIdentifierLen = 63
)

var identifierFragment = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Column describes one metric column of an asset table.
type Column struct {
	Name string
	Type string
}

// Schema describes the metric columns provisioned for a shape.
type Schema struct {
	Shape       model.Shape
	PriceColumn string
}

// NewSchema builds the schema for a shape, naming the price column after the
// quote currency (price_eur, price_usd, ...).
func NewSchema(shape model.Shape, vsCurrency string) (Schema, error) {
	vsCurrency = strings.ToLower(strings.TrimSpace(vsCurrency))
	if vsCurrency == "" {
		vsCurrency = "eur"
	}
	if !identifierFragment.MatchString(vsCurrency) {
		return Schema{}, fmt.Errorf("invalid vs currency: %q", vsCurrency)
	}
	if shape != model.ShapeRich && shape != model.ShapeMinimal {
		return Schema{}, fmt.Errorf("unknown schema shape: %q", shape)
	}
	return Schema{Shape: shape, PriceColumn: "price_" + vsCurrency}, nil
}

// Columns returns the metric columns in the order of model.Snapshot.Values.
// Metric columns are unconstrained NUMERIC; only atl_change_percentage has a
// fixed scale.
func (s Schema) Columns() []Column {
	price := Column{Name: s.PriceColumn, Type: "NUMERIC"}
	if s.Shape == model.ShapeMinimal {
		return []Column{price}
	}
	return []Column{
		price,
		{Name: "market_cap", Type: "NUMERIC"},
		{Name: "volume", Type: "NUMERIC"},
		{Name: "high_24h", Type: "NUMERIC"},
		{Name: "low_24h", Type: "NUMERIC"},
		{Name: "price_change_24h", Type: "NUMERIC"},
		{Name: "price_change_percentage_24h", Type: "NUMERIC"},
		{Name: "market_cap_change_24h", Type: "NUMERIC"},
		{Name: "market_cap_change_percentage_24h", Type: "NUMERIC"},
		{Name: "circulating_supply", Type: "NUMERIC"},
		{Name: "total_supply", Type: "NUMERIC"},
		{Name: "max_supply", Type: "NUMERIC"},
		{Name: "ath", Type: "NUMERIC"},
		{Name: "ath_change_percentage", Type: "NUMERIC"},
		{Name: "atl", Type: "NUMERIC"},
		{Name: "atl_change_percentage", Type: "NUMERIC(24, 6)"},
		{Name: "last_updated", Type: "TIMESTAMP"},
		{Name: "symbol", Type: "VARCHAR(255)"},
		{Name: "image", Type: "TEXT"},
	}
}

// ColumnNames returns the metric column names.
func (s Schema) ColumnNames() []string {
	cols := s.Columns()
	names := make([]string, 0, len(cols))
	for _, col := range cols {
		names = append(names, col.Name)
	}
	return names
}

// ValidateAssetID checks that an asset id is a safe identifier fragment.
func ValidateAssetID(assetID string) error {
	if !identifierFragment.MatchString(assetID) {
		return fmt.Errorf("%w: %q", ErrUnsafeAssetID, assetID)
	}
	if len(assetID)+len(tableSuffix) > maxIdentifierLen {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrUnsafeAssetID, assetID, maxIdentifierLen-len(tableSuffix))
	}
	return nil
}

// TableName returns the unquoted table name for an asset.
func TableName(assetID string) (string, error) {
	if err := ValidateAssetID(assetID); err != nil {
		return "", err
	}
	return assetID + tableSuffix, nil
}

// Placeholders renders a comma-separated placeholder list using render for
// the 1-based position.
func Placeholders(n int, render func(int) string) string {
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, render(i))
	}
	return strings.Join(parts, ", ")
}
