package model

import "github.com/yanun0323/decimal"

// PriceState is the last known close price of one tradable symbol.
type PriceState struct {
	BaseAsset  string          `json:"base_asset"`
	QuoteAsset string          `json:"quote_asset"`
	Price      decimal.Decimal `json:"price"`
	UpdatedAt  int64           `json:"updated"` // epoch millis
}

// NewPriceState returns the zero-valued seed record for a newly discovered symbol.
func NewPriceState(base, quote string) PriceState {
	return PriceState{
		BaseAsset:  base,
		QuoteAsset: quote,
		Price:      decimal.Zero,
	}
}

// Equal reports whether two records carry the same values.
// decimal.Decimal must be compared by value, not with ==.
func (p PriceState) Equal(o PriceState) bool {
	return p.BaseAsset == o.BaseAsset &&
		p.QuoteAsset == o.QuoteAsset &&
		p.UpdatedAt == o.UpdatedAt &&
		p.Price.Equal(o.Price)
}

// QuoteState is the latest top-of-book snapshot of one symbol.
type QuoteState struct {
	UpdateID   int64           `json:"update_id"`
	Symbol     string          `json:"symbol"`
	BestBid    decimal.Decimal `json:"best_bid"`
	BestBidQty decimal.Decimal `json:"best_bid_qty"`
	BestAsk    decimal.Decimal `json:"best_ask"`
	BestAskQty decimal.Decimal `json:"best_ask_qty"`
}

// SymbolInfo is one entry of the exchange symbol directory.
type SymbolInfo struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
}
