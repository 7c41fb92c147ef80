package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultWalletName names the wallet when the configuration does not.
	DefaultWalletName = "default"
	// MinRefreshInterval is the floor for WalletConfig.RefreshInterval.
	MinRefreshInterval = 60 * time.Second
	// DefaultRefreshInterval is used when no interval is configured.
	DefaultRefreshInterval = 300 * time.Second
)

var credentialSentinels = map[string]struct{}{
	"none": {},
	"null": {},
}

// WalletConfig is an immutable configuration snapshot for one wallet.
type WalletConfig struct {
	Name            string
	Tokens          []string
	TokenAmounts    map[string]decimal.Decimal
	BaseCurrency    string
	RefreshInterval time.Duration
	APICredential   string
}

// AmountFor returns the held amount of token, defaulting to 1 when unset.
func (c WalletConfig) AmountFor(token string) decimal.Decimal {
	if amount, ok := c.TokenAmounts[token]; ok {
		return amount
	}
	return decimal.NewFromInt(1)
}

// Currency returns the lower-cased base currency or DefaultCurrency.
func (c WalletConfig) Currency() string {
	if c.BaseCurrency == "" {
		return DefaultCurrency
	}
	return strings.ToLower(c.BaseCurrency)
}

// Interval returns the refresh interval or DefaultRefreshInterval.
func (c WalletConfig) Interval() time.Duration {
	if c.RefreshInterval == 0 {
		return DefaultRefreshInterval
	}
	return c.RefreshInterval
}

// Credential returns the API credential, or "" when it is absent or a sentinel.
func (c WalletConfig) Credential() string {
	return NormalizeCredential(c.APICredential)
}

// NormalizeCredential trims a credential and maps sentinel values to "".
func NormalizeCredential(credential string) string {
	credential = strings.TrimSpace(credential)
	if _, ok := credentialSentinels[strings.ToLower(credential)]; ok {
		return ""
	}
	return credential
}

// Validate rejects snapshots that must never reach a reconciler.
func (c WalletConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Tokens))
	for _, token := range c.Tokens {
		if strings.TrimSpace(token) == "" {
			return fmt.Errorf("%w: empty token id in wallet %q", ErrInvalidConfiguration, c.Name)
		}
		if _, dup := seen[token]; dup {
			return fmt.Errorf("%w: duplicate token %q in wallet %q", ErrInvalidConfiguration, token, c.Name)
		}
		seen[token] = struct{}{}
	}
	for token, amount := range c.TokenAmounts {
		if amount.IsNegative() {
			return fmt.Errorf("%w: negative amount %s for token %q", ErrInvalidConfiguration, amount, token)
		}
	}
	if !IsSupportedCurrency(c.Currency()) {
		return fmt.Errorf("%w: unsupported base currency %q", ErrInvalidConfiguration, c.BaseCurrency)
	}
	if c.Interval() < MinRefreshInterval {
		return fmt.Errorf("%w: refresh interval %s is below the %s minimum", ErrInvalidConfiguration, c.Interval(), MinRefreshInterval)
	}
	return nil
}
