package configloader

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"crypto_wallet/internal/app/port"
	"crypto_wallet/internal/domain/entity"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is used when CONFIG_PATH is not set.
	DefaultPath = "config/config.yml"
	// PathEnv names the environment variable holding the config path.
	PathEnv = "CONFIG_PATH"

	defaultCoinGeckoBaseURL     = "https://api.coingecko.com/api/v3"
	defaultRequestTimeoutMillis = 10000
	defaultLogLevel             = "info"
	defaultMetricsWriteSeconds  = 60
)

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// CoinGeckoConfig holds CoinGecko API specific configurations.
type CoinGeckoConfig struct {
	BaseURL              string `yaml:"baseURL"`
	APIKey               string `yaml:"apiKey"`
	RequestTimeoutMillis int64  `yaml:"requestTimeoutMillis"`
}

// CatalogConfig controls validation of configured token ids against the upstream catalog.
type CatalogConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus textfile written by the run command.
type MetricsConfig struct {
	Textfile             string `yaml:"textfile"`
	WriteIntervalSeconds int    `yaml:"writeIntervalSeconds"`
}

// WalletConfig is one wallet entry as written in the YAML file.
// Amounts are strings so that no precision is lost to float parsing.
type WalletConfig struct {
	Name                   string            `yaml:"name"`
	Tokens                 []string          `yaml:"tokens"`
	TokenAmounts           map[string]string `yaml:"tokenAmounts"`
	BaseCurrency           string            `yaml:"baseCurrency"`
	RefreshIntervalSeconds int               `yaml:"refreshIntervalSeconds"`
	APIKey                 string            `yaml:"apiKey"`
}

// Config is the top-level configuration structure.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	CoinGecko CoinGeckoConfig `yaml:"coingecko"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Wallets   []WalletConfig  `yaml:"wallets"`
}

// PathFromEnv returns CONFIG_PATH or DefaultPath.
func PathFromEnv() string {
	if path := os.Getenv(PathEnv); path != "" {
		return path
	}
	return DefaultPath
}

// Load reads the YAML configuration file from the given path and unmarshals it.
func Load(path string) (*Config, error) {
	logrus.Infof("Loading configuration from path: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Errorf("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML configuration data and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logrus.Errorf("Failed to unmarshal config data: %v", err)
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if cfg.CoinGecko.BaseURL == "" {
		cfg.CoinGecko.BaseURL = defaultCoinGeckoBaseURL
		logrus.Infof("CoinGecko.BaseURL not set, defaulting to %s", cfg.CoinGecko.BaseURL)
	}
	if cfg.CoinGecko.RequestTimeoutMillis <= 0 {
		cfg.CoinGecko.RequestTimeoutMillis = defaultRequestTimeoutMillis
		logrus.Infof("CoinGecko.RequestTimeoutMillis not set, defaulting to %d ms", cfg.CoinGecko.RequestTimeoutMillis)
	}
	if cfg.Metrics.Textfile != "" && cfg.Metrics.WriteIntervalSeconds <= 0 {
		cfg.Metrics.WriteIntervalSeconds = defaultMetricsWriteSeconds
		logrus.Infof("Metrics.WriteIntervalSeconds not set, defaulting to %d", cfg.Metrics.WriteIntervalSeconds)
	}
	if len(cfg.Wallets) == 0 {
		logrus.Warn("No wallets configured, nothing will be tracked")
	}

	for i := range cfg.Wallets {
		w := &cfg.Wallets[i]
		if w.Name == "" {
			w.Name = entity.DefaultWalletName
		}
		if w.RefreshIntervalSeconds == 0 {
			w.RefreshIntervalSeconds = int(entity.DefaultRefreshInterval / time.Second)
			logrus.Infof("Wallet '%s' has no refreshIntervalSeconds, defaulting to %d", w.Name, w.RefreshIntervalSeconds)
		}
	}

	logrus.Info("Configuration loaded successfully.")
	return &cfg, nil
}

// RequestTimeout returns the CoinGecko request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.CoinGecko.RequestTimeoutMillis) * time.Millisecond
}

// MetricsWriteInterval returns how often the metrics textfile is rewritten.
func (c *Config) MetricsWriteInterval() time.Duration {
	return time.Duration(c.Metrics.WriteIntervalSeconds) * time.Second
}

// ToWalletConfigs converts the file entries to validated wallet snapshots.
// A wallet without its own apiKey uses coingecko.apiKey.
func (c *Config) ToWalletConfigs() ([]entity.WalletConfig, error) {
	out := make([]entity.WalletConfig, 0, len(c.Wallets))
	names := make(map[string]struct{}, len(c.Wallets))
	for _, w := range c.Wallets {
		if _, dup := names[w.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate wallet %q", entity.ErrInvalidConfiguration, w.Name)
		}
		names[w.Name] = struct{}{}

		amounts := make(map[string]decimal.Decimal, len(w.TokenAmounts))
		for token, raw := range w.TokenAmounts {
			amount, err := decimal.NewFromString(strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("%w: wallet %q token %q amount %q: %v", entity.ErrInvalidConfiguration, w.Name, token, raw, err)
			}
			amounts[token] = amount
		}

		credential := w.APIKey
		if entity.NormalizeCredential(credential) == "" {
			credential = c.CoinGecko.APIKey
		}

		cfg := entity.WalletConfig{
			Name:            w.Name,
			Tokens:          append([]string(nil), w.Tokens...),
			TokenAmounts:    amounts,
			BaseCurrency:    w.BaseCurrency,
			RefreshInterval: time.Duration(w.RefreshIntervalSeconds) * time.Second,
			APICredential:   credential,
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// UnknownTokens reports configured token ids the registry does not know, per wallet.
// It returns the registry error when the catalog is unavailable.
func UnknownTokens(ctx context.Context, registry port.TokenRegistry, wallets []entity.WalletConfig) (map[string][]string, error) {
	unknown := make(map[string][]string)
	for _, w := range wallets {
		for _, token := range w.Tokens {
			known, err := registry.IsKnownToken(ctx, token)
			if err != nil {
				return nil, err
			}
			if !known {
				unknown[w.Name] = append(unknown[w.Name], token)
			}
		}
	}
	return unknown, nil
}
