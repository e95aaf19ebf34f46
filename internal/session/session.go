package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"orderbook_go/internal/book"
	"orderbook_go/internal/domain"
	"orderbook_go/internal/event"
	"orderbook_go/internal/infra"
)

// ErrClosed is returned by Start and Resync once the session has been closed.
var ErrClosed = errors.New("session closed")

// Stream is the part of the venue stream a session drives.
type Stream interface {
	Connect(ctx context.Context) error
	SubscribeBookDelta(ctx context.Context, ticker domain.Ticker) (string, error)
	Messages() <-chan event.Message
	Close() error
}

// StreamFactory constructs a fresh, unconnected stream.
type StreamFactory func() Stream

// Session owns one book subscription: snapshot, seed, connect, subscribe,
// then apply deltas in delivery order until Close.
type Session struct {
	market    domain.MarketConfig
	snapshots domain.SnapshotProvider
	newStream StreamFactory
	sink      domain.ViewSink
	book      *book.Reconciler
	metrics   *infra.Metrics
	logger    *slog.Logger
	now       func() time.Time

	// alive is flipped first on Close; every mutation checks it under mu.
	alive atomic.Bool

	mu      sync.Mutex
	status  domain.SessionStatus
	errText string
	stream  Stream
	cancel  context.CancelFunc
	started bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Session.
type Option func(*options)

type options struct {
	metrics     *infra.Metrics
	logger      *slog.Logger
	now         func() time.Time
	bookOptions []book.Option
}

// WithMetrics sets the metrics sink. Defaults to infra.GlobalMetrics.
func WithMetrics(m *infra.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHighlightWindow sets how long changed rows stay highlighted.
func WithHighlightWindow(d time.Duration) Option {
	return func(o *options) { o.bookOptions = append(o.bookOptions, book.WithHighlightWindow(d)) }
}

// WithClock injects the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
		o.bookOptions = append(o.bookOptions, book.WithClock(now))
	}
}

// New creates an idle session. It fails only when the market's decimals are
// missing or negative.
func New(market domain.MarketConfig, snapshots domain.SnapshotProvider, newStream StreamFactory, sink domain.ViewSink, opts ...Option) (*Session, error) {
	o := options{
		metrics: infra.GlobalMetrics,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := book.NewFormatterForMarket(market)
	if err != nil {
		return nil, err
	}

	s := &Session{
		market:    market,
		snapshots: snapshots,
		newStream: newStream,
		sink:      sink,
		book:      book.NewReconciler(f, o.bookOptions...),
		metrics:   o.metrics,
		logger:    o.logger.With("module", "session", "pair", market.Pair.String()),
		now:       o.now,
		status:    domain.StatusIdle,
	}
	s.alive.Store(true)
	s.book.OnHighlightCleared(s.publish)
	return s, nil
}

// Start runs the startup sequence and, on success, leaves a dispatch
// goroutine applying deltas. Failures move the session to StatusError and
// are returned. If Close runs while Start is in flight, Start returns
// ErrClosed and nothing is published after Close.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.setStatus(domain.StatusLoading, "")

	// 1. Snapshot
	begin := time.Now()
	snap, err := s.snapshots.GetSnapshot(ctx, s.market.Pair, s.market.Aggregated, s.market.Levels)
	if !s.alive.Load() {
		return ErrClosed
	}
	if err != nil {
		return s.fail(fmt.Sprintf("Failed to fetch order book: %v", err), err)
	}
	s.metrics.RecordSnapshot(time.Since(begin))

	// 2. Seed
	s.book.Seed(book.ParseLevels(snap.Bids), book.ParseLevels(snap.Asks))
	s.publish()

	// 3. Stream
	st := s.newStream()
	if !s.adopt(st) {
		st.Close()
		return ErrClosed
	}
	if err := st.Connect(ctx); err != nil {
		if !s.alive.Load() {
			return ErrClosed
		}
		return s.fail(fmt.Sprintf("Stream connection error: %v", err), err)
	}

	// 4. Subscribe
	id, err := st.SubscribeBookDelta(ctx, s.market.Ticker())
	if !s.alive.Load() {
		return ErrClosed
	}
	if err != nil {
		return s.fail(fmt.Sprintf("Failed to subscribe: %v", err), err)
	}

	// 5. Dispatch
	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		return ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.setStatus(domain.StatusActive, "")
	go s.dispatch(ctx, st.Messages())

	s.logger.Info("Session active", slog.String("subscription", id))
	return nil
}

// adopt records st as the session's stream unless the session is closed.
func (s *Session) adopt(st Stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive.Load() {
		return false
	}
	s.stream = st
	return true
}

func (s *Session) fail(text string, err error) error {
	s.closeStream()
	s.metrics.RecordError()
	s.logger.Error("Session failed", slog.Any("error", err))
	s.setStatus(domain.StatusError, text)
	return err
}

// closeStream closes the current stream at most once.
func (s *Session) closeStream() {
	s.mu.Lock()
	st := s.stream
	s.stream = nil
	s.mu.Unlock()
	if st != nil {
		st.Close()
	}
}

func (s *Session) dispatch(ctx context.Context, msgs <-chan event.Message) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok || !s.alive.Load() {
				return
			}
			s.handle(msg)
		}
	}
}

func (s *Session) handle(msg event.Message) {
	switch m := msg.(type) {
	case event.Disconnected:
		s.logger.Warn("Stream disconnected", slog.Any("error", m.Err))
		s.setStatus(domain.StatusDisconnected, "Disconnected from order book stream")
	case event.BookDelta:
		if !s.forMarket(m.Pair) {
			s.metrics.RecordIgnored()
			return
		}
		n := s.book.ApplyDelta(book.ParseLevels(m.Bids), book.ParseLevels(m.Asks))
		s.metrics.RecordDelta(n)
		s.setStatus(domain.StatusActive, "")
	case event.BestBidOffer:
		s.metrics.RecordIgnored()
		if s.Status() == domain.StatusDisconnected {
			s.setStatus(domain.StatusActive, "")
		}
	default:
		s.metrics.RecordIgnored()
	}
}

// forMarket accepts pushes without a pair; the stream carries one subscription.
func (s *Session) forMarket(p domain.Pair) bool {
	return p == (domain.Pair{}) || p == s.market.Pair
}

// Resync refetches a snapshot and reseeds the book while the stream keeps
// running. A failed resync leaves the current book and status untouched.
func (s *Session) Resync(ctx context.Context) error {
	switch s.Status() {
	case domain.StatusActive, domain.StatusDisconnected:
	default:
		return fmt.Errorf("resync in status %s", s.Status())
	}

	begin := time.Now()
	snap, err := s.snapshots.GetSnapshot(ctx, s.market.Pair, s.market.Aggregated, s.market.Levels)
	if !s.alive.Load() {
		return ErrClosed
	}
	if err != nil {
		s.metrics.RecordError()
		s.logger.Warn("Resync failed", slog.Any("error", err))
		return err
	}
	s.metrics.RecordSnapshot(time.Since(begin))

	s.book.Seed(book.ParseLevels(snap.Bids), book.ParseLevels(snap.Asks))
	s.publish()
	s.logger.Info("Book resynced", slog.Int("bids", len(snap.Bids)), slog.Int("asks", len(snap.Asks)))
	return nil
}

// Close tears the session down. The stream is closed if it was ever
// constructed. Safe to call more than once and from any goroutine.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.alive.Store(false)

		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		s.closeStream()
		s.wg.Wait()
		s.book.Stop()
		s.logger.Info("Session closed")
	})
	return nil
}

// Status returns the current lifecycle state.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// State returns the current view.
func (s *Session) State() domain.ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Market returns the session's market config.
func (s *Session) Market() domain.MarketConfig {
	return s.market
}

func (s *Session) setStatus(status domain.SessionStatus, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive.Load() {
		return
	}
	if s.status != status {
		s.logger.Debug("Status changed", slog.String("from", s.status.String()), slog.String("to", status.String()))
	}
	s.status = status
	s.errText = text
	s.metrics.SetSessionStatus(int(status))
	s.publishLocked()
}

func (s *Session) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alive.Load() {
		s.publishLocked()
	}
}

func (s *Session) publishLocked() {
	if s.sink == nil {
		return
	}
	s.sink.Publish(s.viewLocked())
}

func (s *Session) viewLocked() domain.ViewState {
	return domain.ViewState{
		Pair:      s.market.Pair,
		Status:    s.status,
		Error:     s.errText,
		Book:      s.book.State(),
		UpdatedAt: s.now(),
	}
}
