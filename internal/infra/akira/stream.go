package akira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"orderbook_go/internal/domain"
	"orderbook_go/internal/event"
	"orderbook_go/internal/infra"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Stream is the venue WebSocket client.
//
// Every frame is classified once into an event.Message and delivered in
// arrival order on Messages(). Acks are routed to the pending Subscribe call
// by request id. When the connection drops the stream emits
// event.Disconnected, redials with backoff and replays its subscriptions.
type Stream struct {
	url     string
	token   func() string
	metrics *infra.Metrics
	logger  *slog.Logger
	dialer  websocket.Dialer

	out  chan event.Message
	seq  uint64
	done chan struct{}

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
	writeMu   sync.Mutex

	pendMu  sync.Mutex
	pending map[string]chan ackResult
	subs    []domain.Ticker

	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewStream creates an unconnected stream. token may be nil.
func NewStream(wsURL string, token func() string, metrics *infra.Metrics) *Stream {
	if token == nil {
		token = func() string { return "" }
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Stream{
		url:     wsURL,
		token:   token,
		metrics: metrics,
		logger:  slog.Default().With("module", "akira_stream"),
		dialer:  websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		out:     make(chan event.Message, outboxSize),
		done:    make(chan struct{}),
		pending: make(map[string]chan ackResult),
	}
}

// Messages returns the ordered message channel. It is closed by Close.
func (s *Stream) Messages() <-chan event.Message {
	return s.out
}

// IsConnected reports whether a socket is currently open.
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Connect dials once and returns the dial error, if any. After a successful
// dial the stream keeps itself connected until Close or ctx is done.
func (s *Stream) Connect(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrStreamClosed
	}
	if err := s.connect(ctx); err != nil {
		if errors.Is(err, domain.ErrStreamClosed) {
			return err
		}
		return domain.NewNetworkError("connect", err)
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return domain.ErrStreamClosed
	}
	if s.cancel != nil {
		s.mu.Unlock()
		return errors.New("stream already connected")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(2)
	s.mu.Unlock()

	context.AfterFunc(loopCtx, s.closeConnection)
	go s.connectionLoop(loopCtx)
	go s.pingLoop(loopCtx)
	return nil
}

func (s *Stream) connect(ctx context.Context) error {
	header := http.Header{}
	if tok := s.token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	conn, _, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		conn.Close()
		return domain.ErrStreamClosed
	}
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	s.metrics.IncrementConnections()
	s.logger.Info("Stream connected", slog.String("url", s.url))
	return nil
}

func (s *Stream) connectionLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		s.readLoop(ctx)
		if ctx.Err() != nil || s.closed.Load() {
			return
		}

		s.metrics.RecordDisconnect()
		s.failPending(domain.ErrStreamDisconnected)
		s.emit(ctx, event.Disconnected{BaseEvent: s.nextBase(), Err: domain.ErrStreamDisconnected})

		if !s.reconnect(ctx) {
			return
		}
		s.resubscribe()
	}
}

// reconnect redials until it succeeds or ctx is done.
func (s *Stream) reconnect(ctx context.Context) bool {
	retryCount := 0
	for {
		delay := infra.CalculateBackoff(retryCount)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		if err := s.connect(ctx); err != nil {
			if errors.Is(err, domain.ErrStreamClosed) {
				return false
			}
			s.logger.Warn("Stream reconnect failed", slog.Any("error", err), slog.Int("retry", retryCount))
			retryCount++
			continue
		}
		return true
	}
}

func (s *Stream) resubscribe() {
	s.pendMu.Lock()
	tickers := append([]domain.Ticker(nil), s.subs...)
	s.pendMu.Unlock()

	for _, t := range tickers {
		req := subscribeRequest{Action: "subscribe", ID: uuid.NewString(), Stream: streamBookDelta, Ticker: t}
		b, err := json.Marshal(req)
		if err != nil {
			continue
		}
		if err := s.threadSafeWrite(websocket.TextMessage, b); err != nil {
			s.logger.Warn("Resubscribe failed", slog.String("pair", t.Pair.String()), slog.Any("error", err))
		}
	}
}

func (s *Stream) pingLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			}
		}
	}
}

func (s *Stream) threadSafeWrite(msgType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return fmt.Errorf("no conn")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(msgType, data)
}

func (s *Stream) readLoop(ctx context.Context) {
	for {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !s.closed.Load() {
				s.logger.Warn("Stream read failed", slog.Any("error", err))
			}
			s.closeConnection()
			return
		}
		s.handleFrame(ctx, msg)
	}
}

func (s *Stream) handleFrame(ctx context.Context, raw []byte) {
	ack, msg, err := classify(raw, s.nextBase)
	if err != nil {
		s.metrics.RecordMalformed()
		s.logger.Debug("Dropping frame", slog.Any("error", err))
		return
	}
	if ack != nil {
		s.resolve(ack)
		return
	}
	s.emit(ctx, msg)
}

func (s *Stream) resolve(ack *ackFrame) {
	s.pendMu.Lock()
	ch, ok := s.pending[ack.id]
	delete(s.pending, ack.id)
	s.pendMu.Unlock()
	if !ok {
		// 재구독 ack: 대기자가 없음
		if ack.reason != "" {
			s.metrics.RecordError()
			s.logger.Warn("Resubscribe rejected", slog.String("id", ack.id), slog.String("reason", ack.reason))
		}
		return
	}

	var res ackResult
	if ack.reason != "" {
		res.err = &domain.SubscriptionRejectedError{Stream: streamBookDelta, Reason: ack.reason}
	}
	ch <- res
}

func (s *Stream) failPending(err error) {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	for id, ch := range s.pending {
		ch <- ackResult{err: err}
		delete(s.pending, id)
	}
}

// emit blocks until the consumer takes msg, preserving order.
func (s *Stream) emit(ctx context.Context, msg event.Message) {
	select {
	case s.out <- msg:
	case <-ctx.Done():
	}
}

func (s *Stream) nextBase() event.BaseEvent {
	return event.BaseEvent{Seq: event.NextSeq(&s.seq), Ts: time.Now()}
}

// SubscribeBookDelta subscribes to book deltas for ticker and waits for the ack.
// A refusal is returned as *domain.SubscriptionRejectedError.
func (s *Stream) SubscribeBookDelta(ctx context.Context, ticker domain.Ticker) (string, error) {
	if s.closed.Load() {
		return "", domain.ErrStreamClosed
	}

	id := uuid.NewString()
	ch := make(chan ackResult, 1)
	s.pendMu.Lock()
	s.pending[id] = ch
	s.pendMu.Unlock()
	defer func() {
		s.pendMu.Lock()
		delete(s.pending, id)
		s.pendMu.Unlock()
	}()

	b, err := json.Marshal(subscribeRequest{Action: "subscribe", ID: id, Stream: streamBookDelta, Ticker: ticker})
	if err != nil {
		return "", err
	}
	if err := s.threadSafeWrite(websocket.TextMessage, b); err != nil {
		return "", domain.NewNetworkError("subscribe", err)
	}

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return "", res.err
		}
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", domain.ErrStreamClosed
	case <-timer.C:
		return "", domain.NewNetworkError("subscribe", errors.New("ack timeout"))
	}

	s.pendMu.Lock()
	s.subs = append(s.subs, ticker)
	s.pendMu.Unlock()

	s.logger.Info("Subscribed", slog.String("stream", streamBookDelta), slog.String("pair", ticker.Pair.String()), slog.String("id", id))
	return id, nil
}

func (s *Stream) closeConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.metrics.DecrementConnections()
	}
	s.connected = false
}

// Close stops all goroutines, closes the socket and the message channel.
// It is safe to call more than once and before Connect.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		cancel := s.cancel
		s.mu.Unlock()

		close(s.done)
		if cancel != nil {
			cancel()
		}
		s.closeConnection()
		s.wg.Wait()
		close(s.out)
		s.logger.Info("Stream closed")
	})
	return nil
}

type ackFrame struct {
	id     string
	reason string
}

// classify turns a raw frame into either an ack or a typed message.
// Anything else is ErrMalformedMessage.
func classify(raw []byte, base func() event.BaseEvent) (*ackFrame, event.Message, error) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}

	if f.ID != "" {
		return &ackFrame{id: f.ID, reason: rawText(f.Error)}, nil, nil
	}

	switch f.Stream {
	case streamBookDelta:
		var d bookDeltaData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
		}
		if d.Bids == nil || d.Asks == nil {
			return nil, nil, fmt.Errorf("%w: book delta without bids and asks", domain.ErrMalformedMessage)
		}
		return nil, event.BookDelta{BaseEvent: base(), Pair: f.Pair, Bids: *d.Bids, Asks: *d.Asks, MsgID: d.MsgID}, nil
	case streamBBO:
		var d bboData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
		}
		return nil, event.BestBidOffer{BaseEvent: base(), Pair: f.Pair, Bid: d.Bid, Ask: d.Ask}, nil
	default:
		return nil, nil, fmt.Errorf("%w: stream %q", domain.ErrMalformedMessage, f.Stream)
	}
}
