package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"orderbook_go/internal/domain"
	"orderbook_go/internal/infra/storage"
	"orderbook_go/internal/service"
	"orderbook_go/internal/session"
)

// PrefStore persists UI preferences.
type PrefStore interface {
	SaveBool(key string, v bool) error
}

// Viewer mounts one book session at a time and handles the dashboard's
// key actions. A reload tears the old session down before the new one
// starts, so the view never receives a stale publish.
type Viewer struct {
	market    domain.MarketConfig
	snapshots domain.SnapshotProvider
	newStream session.StreamFactory
	view      *service.BookView
	prefs     PrefStore
	opts      []session.Option
	logger    *slog.Logger

	mu      sync.Mutex
	current *session.Session
}

// NewViewer creates an unmounted viewer.
func NewViewer(market domain.MarketConfig, snapshots domain.SnapshotProvider, newStream session.StreamFactory,
	view *service.BookView, prefs PrefStore, opts ...session.Option) *Viewer {
	return &Viewer{
		market:    market,
		snapshots: snapshots,
		newStream: newStream,
		view:      view,
		prefs:     prefs,
		opts:      opts,
		logger:    slog.Default().With("module", "viewer", "pair", market.Pair.String()),
	}
}

// Mount starts a session, replacing any mounted one. A failed start leaves
// the session mounted in its error state until the next Reload.
func (v *Viewer) Mount(ctx context.Context) error {
	s, err := session.New(v.market, v.snapshots, v.newStream, v.view, v.opts...)
	if err != nil {
		return err
	}

	v.mu.Lock()
	old := v.current
	v.current = s
	v.mu.Unlock()

	if old != nil {
		old.Close()
	}

	err = s.Start(ctx)
	if errors.Is(err, session.ErrClosed) {
		// 다른 Reload가 이미 교체함
		return nil
	}
	return err
}

// Unmount closes the mounted session and clears its view.
func (v *Viewer) Unmount() {
	v.mu.Lock()
	s := v.current
	v.current = nil
	v.mu.Unlock()

	if s == nil {
		return
	}
	s.Close()
	v.view.Remove(v.market.Pair)
}

// Reload remounts the session from a fresh snapshot.
func (v *Viewer) Reload(ctx context.Context) error {
	v.logger.Info("Reloading order book")
	return v.Mount(ctx)
}

// Resync reseeds the mounted session from a fresh snapshot.
func (v *Viewer) Resync(ctx context.Context) error {
	s := v.Session()
	if s == nil {
		return errors.New("no session mounted")
	}
	return s.Resync(ctx)
}

// SetReverse flips the desktop bid column order and remembers the choice.
func (v *Viewer) SetReverse(reverse bool) error {
	v.view.SetReverse(reverse)
	if v.prefs == nil {
		return nil
	}
	return v.prefs.SaveBool(storage.KeyReverse, reverse)
}

// Session returns the mounted session, nil when unmounted.
func (v *Viewer) Session() *session.Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}
