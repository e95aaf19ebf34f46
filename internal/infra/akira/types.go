package akira

import (
	"bytes"
	"encoding/json"
	"time"

	"orderbook_go/internal/domain"
)

const (
	streamBookDelta = "book_delta"
	streamBBO       = "bbo"

	handshakeTimeout = 10 * time.Second
	pingInterval     = 20 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
	ackTimeout       = 10 * time.Second
	outboxSize       = 256
)

// envelope is the venue's response wrapper. Exactly one of Result or Error is populated.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// rawText flattens a member that may be a JSON string or any other value.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

type snapshotResult struct {
	Levels domain.Snapshot `json:"levels"`
}

type authRequest struct {
	Msg            string `json:"msg"`
	Signature      string `json:"signature"`
	SignerAccount  string `json:"signer"`
	TradingAccount string `json:"trading_account"`
}

// subscribeRequest is sent over the stream; the venue acks with the same id.
type subscribeRequest struct {
	Action string        `json:"action"`
	ID     string        `json:"id"`
	Stream string        `json:"stream"`
	Ticker domain.Ticker `json:"ticker"`
}

// inboundFrame covers both acks (id set) and pushes (stream set).
type inboundFrame struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
	Stream string          `json:"stream"`
	Pair   domain.Pair     `json:"pair"`
	Data   json.RawMessage `json:"data"`
}

type bookDeltaData struct {
	Bids  *[]domain.LevelTuple `json:"bids"`
	Asks  *[]domain.LevelTuple `json:"asks"`
	MsgID int64                `json:"msg_id"`
}

type bboData struct {
	Bid *domain.LevelTuple `json:"bid"`
	Ask *domain.LevelTuple `json:"ask"`
}

type ackResult struct {
	err error
}
