package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"crypto_wallet/internal/app/provider"
	"crypto_wallet/internal/domain/entity"
	"crypto_wallet/internal/infrastructure/configloader"
	"crypto_wallet/internal/pkg/logger"

	"github.com/google/subcommands"
	"go.uber.org/zap"
)

const catalogTimeout = 60 * time.Second

type tokensCmd struct {
	configPath string
	filter     string
}

func (*tokensCmd) Name() string     { return "tokens" }
func (*tokensCmd) Synopsis() string { return "list the token ids known upstream" }
func (*tokensCmd) Usage() string {
	return `crypto_wallet tokens [-config <path>] [-filter <text>]

  Prints the upstream token catalog as id, symbol and name. Use the id
  column in the wallet configuration.
`
}

func (c *tokensCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", configloader.PathFromEnv(), "Path to the YAML configuration file (CONFIG_PATH).")
	f.StringVar(&c.filter, "filter", "", "Only show tokens whose id, symbol or name contains this text.")
}

func (c *tokensCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := configloader.Load(c.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	zapLogger, err := newZapLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer zapLogger.Sync()

	registry := provider.NewTokenRegistry(newCoinGeckoClient(cfg, zapLogger), logger.NewSlogAdapter())

	ctx, cancel := context.WithTimeout(ctx, catalogTimeout)
	defer cancel()
	coins, err := registry.Coins(ctx)
	if err != nil {
		zapLogger.Error("Failed to load token catalog", zap.Error(err))
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSYMBOL\tNAME")
	for _, coin := range filterCoins(coins, c.filter) {
		fmt.Fprintf(w, "%s\t%s\t%s\n", coin.ID, coin.Symbol, coin.Name)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func filterCoins(coins []entity.CatalogCoin, filter string) []entity.CatalogCoin {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return coins
	}
	var out []entity.CatalogCoin
	for _, coin := range coins {
		if strings.Contains(strings.ToLower(coin.ID), filter) ||
			strings.Contains(strings.ToLower(coin.Symbol), filter) ||
			strings.Contains(strings.ToLower(coin.Name), filter) {
			out = append(out, coin)
		}
	}
	return out
}

type currenciesCmd struct{}

func (*currenciesCmd) Name() string           { return "currencies" }
func (*currenciesCmd) Synopsis() string       { return "list the supported base currencies" }
func (*currenciesCmd) Usage() string          { return "crypto_wallet currencies\n" }
func (*currenciesCmd) SetFlags(*flag.FlagSet) {}

func (*currenciesCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	for _, code := range entity.SupportedCodes() {
		fmt.Printf("%s\t%s\n", code, entity.SymbolFor(code))
	}
	return subcommands.ExitSuccess
}
