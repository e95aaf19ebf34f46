package book

import (
	"fmt"
	"math/big"
	"strconv"

	"orderbook_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Formatter scales smallest-unit integers into decimal display strings.
type Formatter struct {
	baseDecimals  int32
	quoteDecimals int32
}

// NewFormatter returns a formatter for a pair's decimal exponents.
func NewFormatter(baseDecimals, quoteDecimals int) (*Formatter, error) {
	if baseDecimals < 0 {
		return nil, fmt.Errorf("%w: base=%d", domain.ErrNegativePrecision, baseDecimals)
	}
	if quoteDecimals < 0 {
		return nil, fmt.Errorf("%w: quote=%d", domain.ErrNegativePrecision, quoteDecimals)
	}
	return &Formatter{
		baseDecimals:  int32(baseDecimals),
		quoteDecimals: int32(quoteDecimals),
	}, nil
}

// NewFormatterForMarket resolves the exponents from a market config.
func NewFormatterForMarket(m domain.MarketConfig) (*Formatter, error) {
	base, err := m.BaseDecimals()
	if err != nil {
		return nil, err
	}
	quote, err := m.QuoteDecimals()
	if err != nil {
		return nil, err
	}
	return NewFormatter(base, quote)
}

// Price scales a raw price by 10^-quoteDecimals.
func (f *Formatter) Price(v *big.Int) decimal.Decimal {
	return scale(v, f.quoteDecimals)
}

// Amount scales a raw volume by 10^-baseDecimals.
func (f *Formatter) Amount(v *big.Int) decimal.Decimal {
	return scale(v, f.baseDecimals)
}

// Row formats a single level. Total carries the order count.
func (f *Formatter) Row(l domain.PriceLevel) domain.DisplayRow {
	price := f.Price(l.Price)
	amount := f.Amount(l.Volume)
	return domain.DisplayRow{
		Price:       price.String(),
		Amount:      amount.String(),
		Total:       strconv.Itoa(l.Orders),
		PriceValue:  price,
		AmountValue: amount,
	}
}

// Rows formats levels in input order.
func (f *Formatter) Rows(levels []domain.PriceLevel) []domain.DisplayRow {
	rows := make([]domain.DisplayRow, len(levels))
	for i, l := range levels {
		rows[i] = f.Row(l)
	}
	return rows
}

func scale(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}
