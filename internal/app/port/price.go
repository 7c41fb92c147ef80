package port

import (
	"context"

	"crypto_wallet/internal/domain/entity"
)

// PriceFetcher retrieves quotes for a batch of tokens from the upstream price API.
type PriceFetcher interface {
	// FetchPrices sends one batched request for all tokens. Tokens unknown upstream
	// are missing from the returned table. Failures are *entity.FetchError.
	FetchPrices(ctx context.Context, tokens []string, currency string, credential string) (entity.PriceTable, error)
}

// CatalogFetcher retrieves the upstream token catalog.
type CatalogFetcher interface {
	ListCoins(ctx context.Context) ([]entity.CatalogCoin, error)
}

// TokenRegistry exposes the set of token ids known upstream.
type TokenRegistry interface {
	// ListAvailableTokens returns the sorted catalog ids. On failure it returns an
	// empty slice and an error wrapping entity.ErrCatalogUnavailable.
	ListAvailableTokens(ctx context.Context) ([]string, error)
	IsKnownToken(ctx context.Context, id string) (bool, error)
}
