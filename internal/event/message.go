package event

import (
	"sync/atomic"
	"time"

	"orderbook_go/internal/domain"
)

// Kind discriminates stream messages.
type Kind int

const (
	KindDisconnected Kind = iota
	KindBestBidOffer
	KindBookDelta
)

func (k Kind) String() string {
	switch k {
	case KindDisconnected:
		return "disconnected"
	case KindBestBidOffer:
		return "bbo"
	case KindBookDelta:
		return "book_delta"
	default:
		return "unknown"
	}
}

// Message is a stream push classified once at the transport edge.
// Consumers switch on the concrete type.
type Message interface {
	Kind() Kind
	GetSeq() uint64
}

// BaseEvent carries the per-stream sequence number and receive time.
type BaseEvent struct {
	Seq uint64
	Ts  time.Time
}

func (b BaseEvent) GetSeq() uint64 { return b.Seq }

// Disconnected is emitted by the stream whenever the transport drops.
type Disconnected struct {
	BaseEvent
	Err error
}

func (Disconnected) Kind() Kind { return KindDisconnected }

// BestBidOffer is the top-of-book push. The reconciler ignores it.
type BestBidOffer struct {
	BaseEvent
	Pair domain.Pair
	Bid  *domain.LevelTuple
	Ask  *domain.LevelTuple
}

func (BestBidOffer) Kind() Kind { return KindBestBidOffer }

// BookDelta carries incremental level changes for both sides.
type BookDelta struct {
	BaseEvent
	Pair  domain.Pair
	Bids  []domain.LevelTuple
	Asks  []domain.LevelTuple
	MsgID int64
}

func (BookDelta) Kind() Kind { return KindBookDelta }

// NextSeq atomically increments and returns the next sequence number.
func NextSeq(seq *uint64) uint64 {
	return atomic.AddUint64(seq, 1)
}
