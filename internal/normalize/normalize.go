// Package normalize maps raw upstream records into storable snapshots.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptoMonitor/internal/model"
)

// ATLChangePrecision is the number of decimal places kept for atl_change_percentage.
const ATLChangePrecision = 6

const lastUpdatedLayout = "2006-01-02T15:04:05.999999Z"

var lastUpdatedPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{1,6}Z$`)

var (
	errMissing    = errors.New("missing field")
	errNotNumeric = errors.New("not numeric")
	errNotString  = errors.New("not a string")
)

// NormalizationError reports why a single asset record could not be mapped.
type NormalizationError struct {
	AssetID string
	Field   string
	Err     error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %q field %q: %v", e.AssetID, e.Field, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// Normalizer converts raw records for a configured shape.
type Normalizer struct {
	shape      model.Shape
	vsCurrency string
}

// New builds a Normalizer. vsCurrency is the price key used by minimal payloads.
func New(shape model.Shape, vsCurrency string) *Normalizer {
	vsCurrency = strings.ToLower(strings.TrimSpace(vsCurrency))
	if vsCurrency == "" {
		vsCurrency = "eur"
	}
	return &Normalizer{shape: shape, vsCurrency: vsCurrency}
}

// Normalize maps one raw record into a Snapshot.
func (n *Normalizer) Normalize(raw model.RawRecord) (model.Snapshot, error) {
	if n.shape == model.ShapeMinimal {
		return n.normalizeMinimal(raw)
	}
	return n.normalizeRich(raw)
}

func (n *Normalizer) normalizeMinimal(raw model.RawRecord) (model.Snapshot, error) {
	snap := model.Snapshot{AssetID: raw.AssetID}
	val, ok := raw.Lookup(n.vsCurrency)
	if !ok || val == nil {
		return model.Snapshot{}, &NormalizationError{AssetID: raw.AssetID, Field: n.vsCurrency, Err: errMissing}
	}
	price, err := toDecimal(val)
	if err != nil {
		return model.Snapshot{}, &NormalizationError{AssetID: raw.AssetID, Field: n.vsCurrency, Err: err}
	}
	snap.Price = decimal.NewNullDecimal(price)
	return snap, nil
}

func (n *Normalizer) normalizeRich(raw model.RawRecord) (model.Snapshot, error) {
	if raw.AssetID == "" {
		return model.Snapshot{}, &NormalizationError{Field: "id", Err: errMissing}
	}
	snap := model.Snapshot{AssetID: raw.AssetID}
	f := fieldReader{raw: raw}

	snap.Price = f.number("current_price")
	snap.MarketCap = f.number("market_cap")
	snap.Volume = f.number("total_volume")
	snap.High24h = f.number("high_24h")
	snap.Low24h = f.number("low_24h")
	snap.PriceChange24h = f.number("price_change_24h")
	snap.PriceChangePercentage24h = f.number("price_change_percentage_24h")
	snap.MarketCapChange24h = f.number("market_cap_change_24h")
	snap.MarketCapChangePercentage24h = f.number("market_cap_change_percentage_24h")
	snap.CirculatingSupply = f.number("circulating_supply")
	snap.TotalSupply = f.number("total_supply")
	snap.MaxSupply = f.number("max_supply")
	snap.ATH = f.number("ath")
	snap.ATHChangePercentage = f.number("ath_change_percentage")
	snap.ATL = f.number("atl")
	snap.ATLChangePercentage = RoundATLChange(raw.Fields["atl_change_percentage"])
	snap.Symbol = f.text("symbol")
	snap.Image = f.text("image")
	snap.LastUpdated = f.timestamp("last_updated")

	if f.err != nil {
		return model.Snapshot{}, f.err
	}
	return snap, nil
}

// RoundATLChange rounds a numeric value to ATLChangePrecision places.
// Anything that is not a number becomes null.
func RoundATLChange(val interface{}) decimal.NullDecimal {
	if val == nil {
		return decimal.NullDecimal{}
	}
	d, err := toDecimal(val)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d.Round(ATLChangePrecision))
}

// ParseLastUpdated parses the upstream last_updated value.
func ParseLastUpdated(input string) (time.Time, error) {
	if !lastUpdatedPattern.MatchString(input) {
		return time.Time{}, fmt.Errorf("timestamp %q does not match YYYY-MM-DDTHH:MM:SS.ffffffZ", input)
	}
	return time.ParseInLocation(lastUpdatedLayout, input, time.UTC)
}

// fieldReader keeps the first error so the rich mapping reads linearly.
type fieldReader struct {
	raw model.RawRecord
	err error
}

func (f *fieldReader) fail(field string, err error) {
	if f.err == nil {
		f.err = &NormalizationError{AssetID: f.raw.AssetID, Field: field, Err: err}
	}
}

func (f *fieldReader) lookup(field string) (interface{}, bool) {
	val, ok := f.raw.Lookup(field)
	if !ok {
		f.fail(field, errMissing)
	}
	return val, ok
}

func (f *fieldReader) number(field string) decimal.NullDecimal {
	val, ok := f.lookup(field)
	if !ok || val == nil {
		return decimal.NullDecimal{}
	}
	d, err := toDecimal(val)
	if err != nil {
		f.fail(field, err)
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func (f *fieldReader) text(field string) *string {
	val, ok := f.lookup(field)
	if !ok || val == nil {
		return nil
	}
	s, isString := val.(string)
	if !isString {
		f.fail(field, errNotString)
		return nil
	}
	return &s
}

func (f *fieldReader) timestamp(field string) *time.Time {
	val, ok := f.lookup(field)
	if !ok {
		return nil
	}
	s, isString := val.(string)
	if !isString {
		f.fail(field, errNotString)
		return nil
	}
	ts, err := ParseLastUpdated(s)
	if err != nil {
		f.fail(field, err)
		return nil
	}
	return &ts
}

func toDecimal(val interface{}) (decimal.Decimal, error) {
	switch typed := val.(type) {
	case json.Number:
		d, err := decimal.NewFromString(typed.String())
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %q", errNotNumeric, typed.String())
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(typed), nil
	case int:
		return decimal.NewFromInt(int64(typed)), nil
	case int64:
		return decimal.NewFromInt(typed), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: %T", errNotNumeric, val)
	}
}
