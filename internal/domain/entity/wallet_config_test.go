package entity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletConfig_Defaults(t *testing.T) {
	cfg := WalletConfig{Tokens: []string{"bitcoin"}}

	assert.Equal(t, "usd", cfg.Currency())
	assert.Equal(t, DefaultRefreshInterval, cfg.Interval())
	assert.True(t, cfg.AmountFor("bitcoin").Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "", cfg.Credential())
	require.NoError(t, cfg.Validate())
}

func TestWalletConfig_CurrencyIsCaseInsensitive(t *testing.T) {
	cfg := WalletConfig{BaseCurrency: "EUR"}
	assert.Equal(t, "eur", cfg.Currency())
	require.NoError(t, cfg.Validate())
}

func TestNormalizeCredential(t *testing.T) {
	for _, in := range []string{"", "  ", "none", "None", " NULL "} {
		assert.Equal(t, "", NormalizeCredential(in), in)
	}
	assert.Equal(t, "CG-abc", NormalizeCredential(" CG-abc "))
}

func TestWalletConfig_Validate(t *testing.T) {
	cases := map[string]WalletConfig{
		"empty token":          {Tokens: []string{"bitcoin", " "}},
		"duplicate token":      {Tokens: []string{"bitcoin", "bitcoin"}},
		"negative amount":      {Tokens: []string{"bitcoin"}, TokenAmounts: map[string]decimal.Decimal{"bitcoin": decimal.NewFromInt(-2)}},
		"unsupported currency": {BaseCurrency: "chf"},
		"interval below floor": {RefreshInterval: 59 * time.Second},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfiguration)
		})
	}

	ok := WalletConfig{
		Tokens:          []string{"bitcoin"},
		TokenAmounts:    map[string]decimal.Decimal{"bitcoin": decimal.Zero},
		RefreshInterval: MinRefreshInterval,
	}
	assert.NoError(t, ok.Validate())
}

func TestCurrencyTable(t *testing.T) {
	assert.Equal(t, []string{"usd", "eur", "gbp", "jpy", "cny"}, SupportedCodes())
	assert.Equal(t, "€", SymbolFor("EUR"))
	assert.Equal(t, "¥", SymbolFor("cny"))
	assert.Equal(t, "chf", SymbolFor("chf"))
	assert.False(t, IsSupportedCurrency("chf"))
	assert.True(t, IsSupportedCurrency("GBP"))
}

func TestFetchErrorKindOf(t *testing.T) {
	err := &FetchError{Kind: UpstreamError, StatusCode: 429}
	assert.Equal(t, UpstreamError, FetchErrorKindOf(err))
	assert.Contains(t, err.Error(), "status 429")
	assert.Equal(t, FetchErrorKind(0), FetchErrorKindOf(ErrCatalogUnavailable))
	assert.Equal(t, "decode", DecodeError.String())
}
