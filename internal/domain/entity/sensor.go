package entity

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

// SensorKind distinguishes per-token sensors from the wallet total sensor.
type SensorKind int

const (
	TokenSensor SensorKind = iota
	TotalSensor
)

func (k SensorKind) String() string {
	if k == TotalSensor {
		return "total"
	}
	return "token"
}

// MarshalText renders the kind as "token" or "total".
func (k SensorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *SensorKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "total":
		*k = TotalSensor
	case "token":
		*k = TokenSensor
	default:
		return fmt.Errorf("unknown sensor kind %q", text)
	}
	return nil
}

// Attribute keys exposed on sensor snapshots.
const (
	AttrTokenPrice  = "token_price"
	AttrTokenAmount = "token_amount"
	AttrTokenValue  = "token_value"
	AttrMarketCap   = "market_cap"
	AttrVolume24h   = "volume_24h"
	AttrChange24h   = "change_24h"
	AttrTotalValue  = "total_value"
)

// SensorSnapshot is the presentation read model of a TokenRecord or WalletRecord.
type SensorSnapshot struct {
	ID         string            `json:"id"`
	Wallet     string            `json:"wallet"`
	Kind       SensorKind        `json:"kind"`
	TokenID    string            `json:"tokenId,omitempty"`
	Name       string            `json:"name"`
	State      decimal.Decimal   `json:"state"` // rounded to 2 decimals
	Unit       string            `json:"unit"`
	Attributes map[string]string `json:"attributes"`
	Generation uint64            `json:"generation"`
}

// MarshalJSON encodes State as a JSON number.
func (s SensorSnapshot) MarshalJSON() ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(struct {
		ID         string            `json:"id"`
		Wallet     string            `json:"wallet"`
		Kind       SensorKind        `json:"kind"`
		TokenID    string            `json:"tokenId,omitempty"`
		Name       string            `json:"name"`
		State      jsoniter.Number   `json:"state"`
		Unit       string            `json:"unit"`
		Attributes map[string]string `json:"attributes"`
		Generation uint64            `json:"generation"`
	}{
		ID:         s.ID,
		Wallet:     s.Wallet,
		Kind:       s.Kind,
		TokenID:    s.TokenID,
		Name:       s.Name,
		State:      jsoniter.Number(s.State.String()),
		Unit:       s.Unit,
		Attributes: s.Attributes,
		Generation: s.Generation,
	})
}
