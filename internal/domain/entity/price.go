package entity

import "github.com/shopspring/decimal"

// PriceEntry is one token's quote in the currently configured base currency.
type PriceEntry struct {
	Price     decimal.Decimal
	MarketCap decimal.NullDecimal
	Volume24h decimal.NullDecimal
	Change24h decimal.NullDecimal
}

// PriceTable maps token id to its quote. A table is produced by a single fetch
// and is never merged with another one.
type PriceTable map[string]PriceEntry

// CatalogCoin is one entry of the upstream token catalog.
type CatalogCoin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}
