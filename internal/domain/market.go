package domain

import "fmt"

// Pair identifies a market by base and quote asset symbols.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// Ticker selects the book a stream subscription refers to.
type Ticker struct {
	Pair            Pair `json:"pair"`
	IsEcosystemBook bool `json:"is_ecosystem_book"`
}

// MarketConfig is the per-session market description.
// It is passed to a session at construction instead of living in globals.
type MarketConfig struct {
	Pair            Pair
	DecimalsByAsset map[string]int // asset symbol -> decimal exponent
	FeeToken        string
	Levels          int  // snapshot depth and display window
	Aggregated      bool // request the ecosystem (aggregated) book
}

// Decimals returns the decimal exponent registered for an asset.
func (m MarketConfig) Decimals(asset string) (int, error) {
	d, ok := m.DecimalsByAsset[asset]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s=%d", ErrNegativePrecision, asset, d)
	}
	return d, nil
}

// BaseDecimals returns the base asset exponent.
func (m MarketConfig) BaseDecimals() (int, error) {
	return m.Decimals(m.Pair.Base)
}

// QuoteDecimals returns the quote asset exponent.
func (m MarketConfig) QuoteDecimals() (int, error) {
	return m.Decimals(m.Pair.Quote)
}

// Ticker returns the subscription target for this market.
func (m MarketConfig) Ticker() Ticker {
	return Ticker{Pair: m.Pair, IsEcosystemBook: m.Aggregated}
}
