package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Side of the book
type Side int

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	if s == SideAsk {
		return "ask"
	}
	return "bid"
}

// LevelTuple is the wire form of one level: [price, volume, orders].
// Members may be JSON numbers or numeric strings.
type LevelTuple struct {
	Price  *big.Int
	Volume *big.Int
	Orders int
}

// NewLevelTuple builds a tuple from small integers (fixtures, tests).
func NewLevelTuple(price, volume int64, orders int) LevelTuple {
	return LevelTuple{Price: big.NewInt(price), Volume: big.NewInt(volume), Orders: orders}
}

func (t *LevelTuple) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("level tuple: %w", err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("level tuple: expected 3 members, got %d", len(raw))
	}

	price, err := parseBigInt(raw[0])
	if err != nil {
		return fmt.Errorf("level tuple price: %w", err)
	}
	volume, err := parseBigInt(raw[1])
	if err != nil {
		return fmt.Errorf("level tuple volume: %w", err)
	}
	orders, err := parseBigInt(raw[2])
	if err != nil {
		return fmt.Errorf("level tuple orders: %w", err)
	}
	if !orders.IsInt64() {
		return fmt.Errorf("level tuple orders: out of range %s", orders.String())
	}

	t.Price = price
	t.Volume = volume
	t.Orders = int(orders.Int64())
	return nil
}

func (t LevelTuple) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.WriteString(bigString(t.Price))
	buf.WriteByte(',')
	buf.WriteString(bigString(t.Volume))
	buf.WriteByte(',')
	buf.WriteString(strconv.Itoa(t.Orders))
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func parseBigInt(raw json.RawMessage) (*big.Int, error) {
	s := string(bytes.TrimSpace(raw))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not an integer: %q", s)
	}
	return v, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// PriceLevel is one price point on one side of the book, in smallest units.
type PriceLevel struct {
	Price  *big.Int // strictly positive
	Volume *big.Int // 0 removes the level
	Orders int      // resting orders at this price
}

// Drained reports whether the level should be removed from the book.
func (l PriceLevel) Drained() bool {
	return l.Orders == 0 || l.Volume == nil || l.Volume.Sign() == 0
}

// DisplayRow is a level scaled for display.
// Total is always the order count; Depth is the cumulative amount from the
// best price outward, filled in when a side is read.
type DisplayRow struct {
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Total     string `json:"total"`
	Depth     string `json:"depth"`
	IsChanged bool   `json:"is_changed"`

	PriceValue  decimal.Decimal `json:"-"`
	AmountValue decimal.Decimal `json:"-"`
}

// OrderBookState is the reconciled book: bids descending, asks ascending.
type OrderBookState struct {
	Bids           []DisplayRow `json:"bids"`
	Asks           []DisplayRow `json:"asks"`
	LastUpdateTime time.Time    `json:"last_update_time"`
}

// Snapshot is a full book fetched over request/response transport.
type Snapshot struct {
	Bids  []LevelTuple `json:"bids"`
	Asks  []LevelTuple `json:"asks"`
	MsgID int64        `json:"msg_id"`
}
