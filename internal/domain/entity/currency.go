package entity

import "strings"

// DefaultCurrency is used when a wallet does not name a base currency.
const DefaultCurrency = "usd"

type currencyEntry struct {
	Code   string
	Symbol string
}

// currencyTable is the fixed set of supported base currencies, in display order.
var currencyTable = []currencyEntry{
	{Code: "usd", Symbol: "$"},
	{Code: "eur", Symbol: "€"},
	{Code: "gbp", Symbol: "£"},
	{Code: "jpy", Symbol: "¥"},
	{Code: "cny", Symbol: "¥"},
}

var currencySymbols = func() map[string]string {
	m := make(map[string]string, len(currencyTable))
	for _, c := range currencyTable {
		m[c.Code] = c.Symbol
	}
	return m
}()

// SymbolFor returns the display symbol for a currency code.
// Unknown codes are returned unchanged.
func SymbolFor(code string) string {
	if symbol, ok := currencySymbols[strings.ToLower(code)]; ok {
		return symbol
	}
	return code
}

// SupportedCodes returns the supported currency codes in a stable order.
func SupportedCodes() []string {
	codes := make([]string, len(currencyTable))
	for i, c := range currencyTable {
		codes[i] = c.Code
	}
	return codes
}

// IsSupportedCurrency reports whether code is one of SupportedCodes.
func IsSupportedCurrency(code string) bool {
	_, ok := currencySymbols[strings.ToLower(code)]
	return ok
}
