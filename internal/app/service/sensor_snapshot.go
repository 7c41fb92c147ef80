package service

import (
	"crypto_wallet/internal/domain/entity"
	"crypto_wallet/internal/pkg/utils"

	"github.com/shopspring/decimal"
)

const (
	sensorIDPrefix   = "crypto_wallet"
	sensorNamePrefix = "Crypto Wallet"
	totalSuffix      = "total"
)

// SensorID returns the presentation id of a sensor. Sensors of the default
// wallet keep the short form crypto_wallet_<suffix>.
func SensorID(wallet, suffix string) string {
	if wallet == "" || wallet == entity.DefaultWalletName {
		return sensorIDPrefix + "_" + suffix
	}
	return sensorIDPrefix + "_" + wallet + "_" + suffix
}

func sensorName(wallet, suffix string) string {
	if wallet == "" || wallet == entity.DefaultWalletName {
		return sensorNamePrefix + " " + suffix
	}
	return sensorNamePrefix + " " + wallet + " " + suffix
}

func tokenSnapshot(wallet string, rec *entity.TokenRecord) entity.SensorSnapshot {
	symbol := entity.SymbolFor(rec.Currency)
	attrs := map[string]string{
		entity.AttrTokenPrice:  utils.FormatWithUnit(rec.LastPrice, symbol),
		entity.AttrTokenAmount: utils.FormatNumber(rec.Amount),
		entity.AttrTokenValue:  utils.FormatWithUnit(rec.LastValue, symbol),
	}
	setOptional(attrs, entity.AttrMarketCap, rec.LastMarketCap, symbol)
	setOptional(attrs, entity.AttrVolume24h, rec.LastVolume24h, symbol)
	setOptional(attrs, entity.AttrChange24h, rec.LastChange24h, "%")

	return entity.SensorSnapshot{
		ID:         SensorID(wallet, rec.TokenID),
		Wallet:     wallet,
		Kind:       entity.TokenSensor,
		TokenID:    rec.TokenID,
		Name:       sensorName(wallet, rec.TokenID),
		State:      utils.RoundDisplay(rec.LastValue),
		Unit:       symbol,
		Attributes: attrs,
		Generation: rec.Generation,
	}
}

func totalSnapshot(wallet entity.WalletRecord) entity.SensorSnapshot {
	symbol := entity.SymbolFor(wallet.Currency)
	return entity.SensorSnapshot{
		ID:     SensorID(wallet.Name, totalSuffix),
		Wallet: wallet.Name,
		Kind:   entity.TotalSensor,
		Name:   sensorName(wallet.Name, "Total"),
		State:  utils.RoundDisplay(wallet.LastTotalValue),
		Unit:   symbol,
		Attributes: map[string]string{
			entity.AttrTotalValue: utils.FormatWithUnit(wallet.LastTotalValue, symbol),
		},
		Generation: wallet.Generation,
	}
}

// setOptional adds key only when value is known, so no placeholder is ever shown.
func setOptional(attrs map[string]string, key string, value decimal.NullDecimal, unit string) {
	if !value.Valid {
		return
	}
	attrs[key] = utils.FormatWithUnit(value.Decimal, unit)
}
