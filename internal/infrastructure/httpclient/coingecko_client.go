package httpclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto_wallet/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultBaseURL is the public CoinGecko v3 API.
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	apiKeyHeader = "x-cg-demo-api-key"
)

// simplePriceResponse is token id -> field -> number, where fields are
// "<cur>", "<cur>_market_cap", "<cur>_24h_vol" and "<cur>_24h_change".
type simplePriceResponse map[string]map[string]decimal.NullDecimal

// CoinGeckoClient talks to the CoinGecko simple price and coin list endpoints.
type CoinGeckoClient struct {
	client  *fasthttp.Client
	baseURL string
	apiKey  string
	timeout time.Duration
	logger  *zap.Logger
}

// NewCoinGeckoClient creates a client. apiKey is used for catalog requests;
// price requests carry the per-wallet credential instead.
func NewCoinGeckoClient(baseURL string, apiKey string, timeout time.Duration, logger *zap.Logger) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CoinGeckoClient{
		client:  &fasthttp.Client{Name: "crypto_wallet"},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  entity.NormalizeCredential(apiKey),
		timeout: timeout,
		logger:  logger.Named("CoinGeckoClient"),
	}
}

// FetchPrices implements port.PriceFetcher.
func (c *CoinGeckoClient) FetchPrices(ctx context.Context, tokens []string, currency string, credential string) (entity.PriceTable, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("tokens cannot be empty")
	}
	currency = strings.ToLower(currency)

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(c.baseURL + "/simple/price")
	args := req.URI().QueryArgs()
	args.Add("ids", strings.Join(tokens, ","))
	args.Add("vs_currencies", currency)
	args.Add("include_market_cap", "true")
	args.Add("include_24hr_vol", "true")
	args.Add("include_24hr_change", "true")
	c.prepare(req, entity.NormalizeCredential(credential))

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	requestURL := req.URI().String()
	c.logger.Debug("Requesting token prices from CoinGecko",
		zap.String("url", requestURL),
		zap.Int("tokenCount", len(tokens)))

	if err := c.do(ctx, req, resp); err != nil {
		return nil, err
	}

	var decoded simplePriceResponse
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		c.logger.Error("Failed to unmarshal CoinGecko price response",
			zap.String("url", requestURL),
			zap.ByteString("responseBody", resp.Body()),
			zap.Error(err))
		return nil, &entity.FetchError{Kind: entity.DecodeError, Err: fmt.Errorf("unmarshal price response: %w", err)}
	}

	table := make(entity.PriceTable, len(decoded))
	for token, fields := range decoded {
		price, ok := fields[currency]
		if !ok || !price.Valid {
			c.logger.Debug("No price in response for token", zap.String("token", token), zap.String("currency", currency))
			continue
		}
		if price.Decimal.IsNegative() {
			return nil, &entity.FetchError{Kind: entity.DecodeError, Err: fmt.Errorf("negative price %s for token %q", price.Decimal, token)}
		}
		table[token] = entity.PriceEntry{
			Price:     price.Decimal,
			MarketCap: fields[currency+"_market_cap"],
			Volume24h: fields[currency+"_24h_vol"],
			Change24h: fields[currency+"_24h_change"],
		}
	}

	if missing := len(tokens) - len(table); missing > 0 {
		c.logger.Warn("CoinGecko response is missing some requested tokens",
			zap.Int("requested", len(tokens)),
			zap.Int("missing", missing))
	}
	return table, nil
}

// ListCoins implements port.CatalogFetcher.
func (c *CoinGeckoClient) ListCoins(ctx context.Context) ([]entity.CatalogCoin, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(c.baseURL + "/coins/list")
	c.prepare(req, c.apiKey)

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	c.logger.Debug("Requesting coin catalog from CoinGecko", zap.String("url", req.URI().String()))
	if err := c.do(ctx, req, resp); err != nil {
		return nil, err
	}

	var coins []entity.CatalogCoin
	if err := json.Unmarshal(resp.Body(), &coins); err != nil {
		c.logger.Error("Failed to unmarshal CoinGecko coin list", zap.Error(err))
		return nil, &entity.FetchError{Kind: entity.DecodeError, Err: fmt.Errorf("unmarshal coin list: %w", err)}
	}
	c.logger.Debug("Fetched coin catalog", zap.Int("coinCount", len(coins)))
	return coins, nil
}

func (c *CoinGeckoClient) prepare(req *fasthttp.Request, credential string) {
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	if credential != "" {
		req.Header.Set(apiKeyHeader, credential)
	}
}

// do executes req honoring ctx's deadline, falling back to the client timeout,
// and classifies transport and status failures.
func (c *CoinGeckoClient) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := ctx.Err(); err != nil {
		return &entity.FetchError{Kind: entity.NetworkError, Err: err}
	}

	requestURL := req.URI().String()
	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.client.DoDeadline(req, resp, deadline)
	} else {
		err = c.client.DoTimeout(req, resp, c.timeout)
	}
	if err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			err = fmt.Errorf("request to %s timed out: %w", requestURL, err)
		} else {
			err = fmt.Errorf("failed to execute request to %s: %w", requestURL, err)
		}
		c.logger.Error("CoinGecko request failed", zap.String("url", requestURL), zap.Error(err))
		return &entity.FetchError{Kind: entity.NetworkError, Err: err}
	}

	if status := resp.StatusCode(); status < 200 || status > 299 {
		c.logger.Error("CoinGecko API request failed",
			zap.String("url", requestURL),
			zap.Int("statusCode", status),
			zap.ByteString("responseBody", resp.Body()))
		return &entity.FetchError{
			Kind:       entity.UpstreamError,
			StatusCode: status,
			Err:        fmt.Errorf("request to %s failed with status %d", requestURL, status),
		}
	}
	return nil
}
