package book

import (
	"sync"
	"time"

	"orderbook_go/internal/domain"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

const (
	// DefaultHighlightWindow is how long touched rows stay flagged as changed.
	DefaultHighlightWindow = 500 * time.Millisecond

	treeDegree = 16
)

type changeKey struct {
	side  domain.Side
	price string
}

// Reconciler maintains both sides of the book and merges delta batches into them.
//
// Each side is a B-tree ordered by numeric price (bids descending, asks
// ascending), so a read walks the tree in display order. Every ApplyDelta
// replaces the changed-key set and schedules its own clear after the
// highlight window. Clears are not coordinated: an older timer can wipe
// highlights set by a newer batch.
type Reconciler struct {
	mu         sync.RWMutex
	formatter  *Formatter
	bids       *btree.BTreeG[domain.DisplayRow]
	asks       *btree.BTreeG[domain.DisplayRow]
	changed    map[changeKey]struct{}
	lastUpdate time.Time

	window    time.Duration
	now       func() time.Time
	timers    map[uint64]*time.Timer
	nextTimer uint64
	stopped   bool
	onClear   func()
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithHighlightWindow overrides the highlight clear delay.
func WithHighlightWindow(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.window = d
		}
	}
}

// WithClock injects the wall clock used for LastUpdateTime.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler creates an empty book.
func NewReconciler(f *Formatter, opts ...Option) *Reconciler {
	r := &Reconciler{
		formatter: f,
		bids: btree.NewG(treeDegree, func(a, b domain.DisplayRow) bool {
			return a.PriceValue.GreaterThan(b.PriceValue)
		}),
		asks: btree.NewG(treeDegree, func(a, b domain.DisplayRow) bool {
			return a.PriceValue.LessThan(b.PriceValue)
		}),
		changed: make(map[changeKey]struct{}),
		window:  DefaultHighlightWindow,
		now:     time.Now,
		timers:  make(map[uint64]*time.Timer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnHighlightCleared registers a callback run after a highlight timer fires.
func (r *Reconciler) OnHighlightCleared(fn func()) {
	r.mu.Lock()
	r.onClear = fn
	r.mu.Unlock()
}

// Seed replaces both sides wholesale from snapshot levels. A stopped
// reconciler ignores it.
func (r *Reconciler) Seed(bids, asks []domain.PriceLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}

	r.bids.Clear(false)
	r.asks.Clear(false)
	for _, row := range r.formatter.Rows(bids) {
		r.bids.ReplaceOrInsert(row)
	}
	for _, row := range r.formatter.Rows(asks) {
		r.asks.ReplaceOrInsert(row)
	}
	r.changed = make(map[changeKey]struct{})
	r.lastUpdate = r.now()
}

// ApplyDelta merges one batch of level changes and returns the number of
// levels touched. Drained levels are removed, the rest upserted; levels not
// in the batch are left alone. Later entries for the same price win.
func (r *Reconciler) ApplyDelta(bids, asks []domain.PriceLevel) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return 0
	}

	changed := make(map[changeKey]struct{}, len(bids)+len(asks))
	r.applySide(r.bids, domain.SideBid, bids, changed)
	r.applySide(r.asks, domain.SideAsk, asks, changed)

	r.changed = changed
	r.lastUpdate = r.now()
	if len(changed) > 0 {
		r.scheduleClear()
	}
	return len(changed)
}

func (r *Reconciler) applySide(tree *btree.BTreeG[domain.DisplayRow], side domain.Side, levels []domain.PriceLevel, changed map[changeKey]struct{}) {
	for _, l := range levels {
		row := r.formatter.Row(l)
		if l.Drained() {
			tree.Delete(row)
		} else {
			tree.ReplaceOrInsert(row)
		}
		changed[changeKey{side: side, price: row.Price}] = struct{}{}
	}
}

// scheduleClear must be called with the lock held.
func (r *Reconciler) scheduleClear() {
	r.nextTimer++
	id := r.nextTimer
	r.timers[id] = time.AfterFunc(r.window, func() { r.clearChanged(id) })
}

func (r *Reconciler) clearChanged(id uint64) {
	r.mu.Lock()
	delete(r.timers, id)
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.changed = make(map[changeKey]struct{})
	hook := r.onClear
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// Stop cancels pending highlight timers. Further deltas are ignored.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}

// State returns a sorted copy of the book with IsChanged and Depth filled in.
func (r *Reconciler) State() domain.OrderBookState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return domain.OrderBookState{
		Bids:           r.collect(r.bids, domain.SideBid),
		Asks:           r.collect(r.asks, domain.SideAsk),
		LastUpdateTime: r.lastUpdate,
	}
}

func (r *Reconciler) collect(tree *btree.BTreeG[domain.DisplayRow], side domain.Side) []domain.DisplayRow {
	rows := make([]domain.DisplayRow, 0, tree.Len())
	depth := decimal.Zero
	tree.Ascend(func(row domain.DisplayRow) bool {
		depth = depth.Add(row.AmountValue)
		row.Depth = depth.String()
		_, row.IsChanged = r.changed[changeKey{side: side, price: row.Price}]
		rows = append(rows, row)
		return true
	})
	return rows
}

// Len returns the number of levels on each side.
func (r *Reconciler) Len() (bids, asks int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bids.Len(), r.asks.Len()
}

// PendingHighlights returns the number of scheduled clear timers.
func (r *Reconciler) PendingHighlights() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.timers)
}
