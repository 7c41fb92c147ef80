package provider

import (
	"context"
	"fmt"
	"sort"

	"crypto_wallet/internal/app/port"
	"crypto_wallet/internal/domain/entity"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const catalogCacheKey = "catalog"

// catalog is the cached result of one successful catalog fetch.
type catalog struct {
	ids   []string
	known map[string]struct{}
	coins []entity.CatalogCoin
}

// TokenRegistry caches the upstream token catalog for the process lifetime.
// A failed population is not cached, so the next call retries.
type TokenRegistry struct {
	fetcher port.CatalogFetcher
	logger  port.Logger
	store   *cache.Cache
	group   singleflight.Group
}

var _ port.TokenRegistry = (*TokenRegistry)(nil)

// NewTokenRegistry creates a registry backed by fetcher.
func NewTokenRegistry(fetcher port.CatalogFetcher, logger port.Logger) *TokenRegistry {
	return &TokenRegistry{
		fetcher: fetcher,
		logger:  logger,
		store:   cache.New(cache.NoExpiration, 0),
	}
}

// ListAvailableTokens returns the sorted catalog ids. On failure it returns an
// empty, non-nil slice and an error wrapping entity.ErrCatalogUnavailable.
func (r *TokenRegistry) ListAvailableTokens(ctx context.Context) ([]string, error) {
	c, err := r.load(ctx)
	if err != nil {
		return []string{}, err
	}
	return append([]string(nil), c.ids...), nil
}

// Coins returns the full catalog entries, sorted by id.
func (r *TokenRegistry) Coins(ctx context.Context) ([]entity.CatalogCoin, error) {
	c, err := r.load(ctx)
	if err != nil {
		return []entity.CatalogCoin{}, err
	}
	return append([]entity.CatalogCoin(nil), c.coins...), nil
}

// IsKnownToken reports whether id is in the catalog. The error is non-nil when
// the catalog is unavailable, in which case the answer is unknown.
func (r *TokenRegistry) IsKnownToken(ctx context.Context, id string) (bool, error) {
	c, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	_, ok := c.known[id]
	return ok, nil
}

// Invalidate drops the cached catalog; the next call fetches it again.
func (r *TokenRegistry) Invalidate() {
	r.store.Delete(catalogCacheKey)
	r.logger.Info("Token catalog cache invalidated")
}

func (r *TokenRegistry) load(ctx context.Context) (*catalog, error) {
	if cached, ok := r.store.Get(catalogCacheKey); ok {
		r.logger.Debug("Reusing cached token catalog")
		return cached.(*catalog), nil
	}

	v, err, _ := r.group.Do(catalogCacheKey, func() (interface{}, error) {
		if cached, ok := r.store.Get(catalogCacheKey); ok {
			return cached.(*catalog), nil
		}
		r.logger.Debug("Fetching token catalog from API")
		coins, err := r.fetcher.ListCoins(ctx)
		if err != nil {
			r.logger.Error("Error fetching available crypto tokens", "error", err)
			return nil, fmt.Errorf("%w: %w", entity.ErrCatalogUnavailable, err)
		}
		c := buildCatalog(coins)
		r.store.Set(catalogCacheKey, c, cache.NoExpiration)
		r.logger.Info("Token catalog loaded and cached", "token_count", len(c.ids))
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*catalog), nil
}

func buildCatalog(coins []entity.CatalogCoin) *catalog {
	c := &catalog{known: make(map[string]struct{}, len(coins))}
	for _, coin := range coins {
		if coin.ID == "" {
			continue
		}
		if _, dup := c.known[coin.ID]; dup {
			continue
		}
		c.known[coin.ID] = struct{}{}
		c.coins = append(c.coins, coin)
	}
	sort.Slice(c.coins, func(i, j int) bool { return c.coins[i].ID < c.coins[j].ID })
	c.ids = make([]string, len(c.coins))
	for i, coin := range c.coins {
		c.ids[i] = coin.ID
	}
	return c
}
