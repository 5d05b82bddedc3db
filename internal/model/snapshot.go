package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the normalized row stored for one asset per poll cycle.
// Minimal snapshots only carry AssetID and Price.
type Snapshot struct {
	AssetID string `json:"asset_id"`

	Price                        decimal.NullDecimal `json:"price"`
	MarketCap                    decimal.NullDecimal `json:"market_cap"`
	Volume                       decimal.NullDecimal `json:"volume"`
	High24h                      decimal.NullDecimal `json:"high_24h"`
	Low24h                       decimal.NullDecimal `json:"low_24h"`
	PriceChange24h               decimal.NullDecimal `json:"price_change_24h"`
	PriceChangePercentage24h     decimal.NullDecimal `json:"price_change_percentage_24h"`
	MarketCapChange24h           decimal.NullDecimal `json:"market_cap_change_24h"`
	MarketCapChangePercentage24h decimal.NullDecimal `json:"market_cap_change_percentage_24h"`
	CirculatingSupply            decimal.NullDecimal `json:"circulating_supply"`
	TotalSupply                  decimal.NullDecimal `json:"total_supply"`
	MaxSupply                    decimal.NullDecimal `json:"max_supply"`
	ATH                          decimal.NullDecimal `json:"ath"`
	ATHChangePercentage          decimal.NullDecimal `json:"ath_change_percentage"`
	ATL                          decimal.NullDecimal `json:"atl"`
	ATLChangePercentage          decimal.NullDecimal `json:"atl_change_percentage"`

	LastUpdated *time.Time `json:"last_updated,omitempty"`
	Symbol      *string    `json:"symbol,omitempty"`
	Image       *string    `json:"image,omitempty"`
}

// RichValues returns the metric values in RichColumns order.
func (s Snapshot) RichValues() []interface{} {
	var lastUpdated interface{}
	if s.LastUpdated != nil {
		lastUpdated = s.LastUpdated.UTC()
	}
	return []interface{}{
		s.Price,
		s.MarketCap,
		s.Volume,
		s.High24h,
		s.Low24h,
		s.PriceChange24h,
		s.PriceChangePercentage24h,
		s.MarketCapChange24h,
		s.MarketCapChangePercentage24h,
		s.CirculatingSupply,
		s.TotalSupply,
		s.MaxSupply,
		s.ATH,
		s.ATHChangePercentage,
		s.ATL,
		s.ATLChangePercentage,
		lastUpdated,
		stringOrNil(s.Symbol),
		stringOrNil(s.Image),
	}
}

// Values returns the column values stored for the given shape.
func (s Snapshot) Values(shape Shape) []interface{} {
	if shape == ShapeMinimal {
		return []interface{}{s.Price}
	}
	return s.RichValues()
}

func stringOrNil(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
