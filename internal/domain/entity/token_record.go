package entity

import "github.com/shopspring/decimal"

// TokenState is the lifecycle state of a tracked token.
type TokenState int

const (
	// TokenActive records receive price updates.
	TokenActive TokenState = iota
	// TokenRemoved is terminal: the record receives no further updates.
	TokenRemoved
)

// TokenRecord is the live value record of one tracked token.
// Currency is the currency LastPrice and LastValue are denominated in.
type TokenRecord struct {
	TokenID       string
	State         TokenState
	Amount        decimal.Decimal
	Currency      string
	LastPrice     decimal.Decimal
	LastValue     decimal.Decimal
	LastMarketCap decimal.NullDecimal
	LastVolume24h decimal.NullDecimal
	LastChange24h decimal.NullDecimal
	// Generation is the fetch generation the values were taken from; 0 means never priced.
	Generation uint64
}

// NewTokenRecord returns an active record valued at zero.
func NewTokenRecord(tokenID string, amount decimal.Decimal, currency string) *TokenRecord {
	return &TokenRecord{
		TokenID:  tokenID,
		State:    TokenActive,
		Amount:   amount,
		Currency: currency,
	}
}

// ApplyPrice takes the values of entry for the given generation.
func (r *TokenRecord) ApplyPrice(entry PriceEntry, currency string, generation uint64) {
	r.Currency = currency
	r.LastPrice = entry.Price
	r.LastValue = entry.Price.Mul(r.Amount)
	r.LastMarketCap = entry.MarketCap
	r.LastVolume24h = entry.Volume24h
	r.LastChange24h = entry.Change24h
	r.Generation = generation
}

// Retain keeps the last known values and marks them as part of generation.
func (r *TokenRecord) Retain(generation uint64) {
	r.Generation = generation
}

// Reset zeroes the values and switches the record to currency.
func (r *TokenRecord) Reset(currency string, generation uint64) {
	r.ApplyPrice(PriceEntry{}, currency, generation)
}

// SetAmount updates the held amount and recomputes LastValue from LastPrice.
// It reports whether the amount changed.
func (r *TokenRecord) SetAmount(amount decimal.Decimal) bool {
	if r.Amount.Equal(amount) {
		return false
	}
	r.Amount = amount
	r.LastValue = r.LastPrice.Mul(amount)
	return true
}

// WalletRecord is the aggregate value of a wallet.
type WalletRecord struct {
	Name           string
	Currency       string
	LastTotalValue decimal.Decimal
	Generation     uint64
}
