package book

import (
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"orderbook_go/internal/domain"
)

func lvl(price, volume int64, orders int) domain.PriceLevel {
	return domain.PriceLevel{Price: big.NewInt(price), Volume: big.NewInt(volume), Orders: orders}
}

func prices(rows []domain.DisplayRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Price
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newTestReconciler(t *testing.T, base, quote int, opts ...Option) *Reconciler {
	t.Helper()
	f, err := NewFormatter(base, quote)
	if err != nil {
		t.Fatalf("NewFormatter failed: %v", err)
	}
	r := NewReconciler(f, opts...)
	t.Cleanup(r.Stop)
	return r
}

func TestParseLevels(t *testing.T) {
	tuples := []domain.LevelTuple{
		domain.NewLevelTuple(90, 3, 1),
		domain.NewLevelTuple(100, 5, 2),
		domain.NewLevelTuple(90, 0, 0),
	}

	levels := ParseLevels(tuples)
	if len(levels) != 3 {
		t.Fatalf("Expected 3 levels, got %d", len(levels))
	}
	// Order preserved, duplicates kept
	want := []int64{90, 100, 90}
	for i, w := range want {
		if levels[i].Price.Int64() != w {
			t.Errorf("levels[%d].Price = %s, want %d", i, levels[i].Price, w)
		}
	}
	if levels[1].Orders != 2 || levels[1].Volume.Int64() != 5 {
		t.Errorf("unexpected level %+v", levels[1])
	}

	if got := ParseLevels(nil); len(got) != 0 {
		t.Errorf("Expected empty result, got %d", len(got))
	}
}

func TestFormatter_Row(t *testing.T) {
	tests := []struct {
		name       string
		base       int
		quote      int
		level      domain.PriceLevel
		wantPrice  string
		wantAmount string
		wantTotal  string
	}{
		{"strk usdc", 18, 6, lvl(2500000, 0, 1), "2.5", "0", "1"},
		{"small price", 18, 6, lvl(100, 5, 1), "0.0001", "0.000000000000000005", "1"},
		{"whole units", 0, 0, lvl(42, 7, 3), "42", "7", "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFormatter(tt.base, tt.quote)
			if err != nil {
				t.Fatalf("NewFormatter failed: %v", err)
			}
			row := f.Row(tt.level)
			if row.Price != tt.wantPrice {
				t.Errorf("Price = %s, want %s", row.Price, tt.wantPrice)
			}
			if row.Amount != tt.wantAmount {
				t.Errorf("Amount = %s, want %s", row.Amount, tt.wantAmount)
			}
			if row.Total != tt.wantTotal {
				t.Errorf("Total = %s, want %s", row.Total, tt.wantTotal)
			}
		})
	}
}

func TestFormatter_LargeMagnitude(t *testing.T) {
	f, _ := NewFormatter(18, 6)
	vol, _ := new(big.Int).SetString("123456789012345678901234567890", 10)

	row := f.Row(domain.PriceLevel{Price: big.NewInt(1), Volume: vol, Orders: 1})
	if row.Amount != "123456789012.34567890123456789" {
		t.Errorf("Amount = %s", row.Amount)
	}
}

func TestFormatter_NegativePrecision(t *testing.T) {
	if _, err := NewFormatter(-1, 6); !errors.Is(err, domain.ErrNegativePrecision) {
		t.Errorf("expected ErrNegativePrecision for base, got %v", err)
	}
	if _, err := NewFormatter(18, -2); !errors.Is(err, domain.ErrNegativePrecision) {
		t.Errorf("expected ErrNegativePrecision for quote, got %v", err)
	}
}

func TestFormatterForMarket(t *testing.T) {
	m := domain.MarketConfig{
		Pair:            domain.Pair{Base: "STRK", Quote: "USDC"},
		DecimalsByAsset: map[string]int{"STRK": 18, "USDC": 6},
	}
	f, err := NewFormatterForMarket(m)
	if err != nil {
		t.Fatalf("NewFormatterForMarket failed: %v", err)
	}
	if got := f.Row(lvl(1000000, 1000000000000000000, 1)); got.Price != "1" || got.Amount != "1" {
		t.Errorf("unexpected row %+v", got)
	}

	m.Pair.Quote = "ETH"
	if _, err := NewFormatterForMarket(m); !errors.Is(err, domain.ErrUnknownAsset) {
		t.Errorf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestReconciler_SeedOrdering(t *testing.T) {
	r := newTestReconciler(t, 18, 6)
	r.Seed(
		[]domain.PriceLevel{lvl(90, 3, 1), lvl(100, 5, 1)},
		[]domain.PriceLevel{lvl(120, 4, 1), lvl(110, 2, 1)},
	)

	state := r.State()
	if got := prices(state.Bids); !equalStrings(got, []string{"0.0001", "0.00009"}) {
		t.Errorf("bids = %v, want [0.0001 0.00009]", got)
	}
	if got := prices(state.Asks); !equalStrings(got, []string{"0.00011", "0.00012"}) {
		t.Errorf("asks = %v, want [0.00011 0.00012]", got)
	}
	if state.LastUpdateTime.IsZero() {
		t.Error("LastUpdateTime should be set after seed")
	}
}

func TestReconciler_DeltaRemovesDrainedLevel(t *testing.T) {
	r := newTestReconciler(t, 18, 6)
	r.Seed(
		[]domain.PriceLevel{lvl(100, 5, 1), lvl(90, 3, 1)},
		[]domain.PriceLevel{lvl(110, 2, 1), lvl(120, 4, 1)},
	)

	touched := r.ApplyDelta([]domain.PriceLevel{lvl(100, 0, 0)}, nil)
	if touched != 1 {
		t.Errorf("touched = %d, want 1", touched)
	}

	state := r.State()
	if got := prices(state.Bids); !equalStrings(got, []string{"0.00009"}) {
		t.Errorf("bids = %v, want [0.00009]", got)
	}
	if len(state.Asks) != 2 {
		t.Errorf("asks should be untouched, got %d", len(state.Asks))
	}
}

func TestReconciler_RemovalByZeroVolume(t *testing.T) {
	r := newTestReconciler(t, 0, 0)
	r.Seed([]domain.PriceLevel{lvl(10, 1, 1)}, nil)

	r.ApplyDelta([]domain.PriceLevel{lvl(10, 0, 4)}, nil)
	if bids, _ := r.Len(); bids != 0 {
		t.Errorf("expected level removed, %d bids left", bids)
	}
}

func TestReconciler_LastWriteWinsInBatch(t *testing.T) {
	r := newTestReconciler(t, 0, 0)
	r.Seed(nil, nil)

	r.ApplyDelta(nil, []domain.PriceLevel{lvl(50, 1, 1), lvl(50, 7, 2), lvl(60, 3, 1)})

	state := r.State()
	if len(state.Asks) != 2 {
		t.Fatalf("Expected 2 asks, got %d", len(state.Asks))
	}
	if state.Asks[0].Amount != "7" || state.Asks[0].Total != "2" {
		t.Errorf("Expected last write for 50, got %+v", state.Asks[0])
	}

	// Upsert then drain in the same batch leaves the key absent
	r.ApplyDelta(nil, []domain.PriceLevel{lvl(70, 1, 1), lvl(70, 0, 0)})
	if _, asks := r.Len(); asks != 2 {
		t.Errorf("Expected 2 asks after drain, got %d", asks)
	}
}

func TestReconciler_NumericNotLexicalOrder(t *testing.T) {
	r := newTestReconciler(t, 0, 1)
	// 9.5 and 10.2 sort wrong as strings
	r.Seed(
		[]domain.PriceLevel{lvl(95, 1, 1), lvl(102, 1, 1), lvl(5, 1, 1)},
		[]domain.PriceLevel{lvl(102, 1, 1), lvl(95, 1, 1), lvl(1000, 1, 1)},
	)

	state := r.State()
	if got := prices(state.Bids); !equalStrings(got, []string{"10.2", "9.5", "0.5"}) {
		t.Errorf("bids = %v", got)
	}
	if got := prices(state.Asks); !equalStrings(got, []string{"9.5", "10.2", "100"}) {
		t.Errorf("asks = %v", got)
	}
}

func TestReconciler_StrictOrderAfterDeltas(t *testing.T) {
	r := newTestReconciler(t, 0, 2)
	r.Seed(nil, nil)

	inputs := []int64{350, 12, 9999, 100, 101, 7, 2048, 100}
	for i, p := range inputs {
		r.ApplyDelta([]domain.PriceLevel{lvl(p, int64(i+1), 1)}, []domain.PriceLevel{lvl(p+10000, 1, 1)})
	}

	state := r.State()
	for i := 1; i < len(state.Bids); i++ {
		if !state.Bids[i-1].PriceValue.GreaterThan(state.Bids[i].PriceValue) {
			t.Errorf("bids not strictly descending at %d: %v", i, prices(state.Bids))
		}
	}
	for i := 1; i < len(state.Asks); i++ {
		if !state.Asks[i-1].PriceValue.LessThan(state.Asks[i].PriceValue) {
			t.Errorf("asks not strictly ascending at %d: %v", i, prices(state.Asks))
		}
	}
	if len(state.Bids) != 7 {
		t.Errorf("Expected 7 unique bids, got %d", len(state.Bids))
	}
}

func TestReconciler_EmptyDeltaIsIdempotent(t *testing.T) {
	r := newTestReconciler(t, 18, 6)
	r.Seed(
		[]domain.PriceLevel{lvl(100, 5, 1), lvl(90, 3, 1)},
		[]domain.PriceLevel{lvl(110, 2, 1)},
	)
	before := r.State()

	if touched := r.ApplyDelta(nil, nil); touched != 0 {
		t.Errorf("touched = %d, want 0", touched)
	}
	after := r.State()

	if !equalStrings(prices(before.Bids), prices(after.Bids)) || !equalStrings(prices(before.Asks), prices(after.Asks)) {
		t.Errorf("state changed: %v/%v -> %v/%v", prices(before.Bids), prices(before.Asks), prices(after.Bids), prices(after.Asks))
	}
	for i := range before.Bids {
		if before.Bids[i].Amount != after.Bids[i].Amount {
			t.Errorf("bid %d amount changed", i)
		}
	}
	if r.PendingHighlights() != 0 {
		t.Error("empty batch should not schedule a highlight clear")
	}
}

func TestReconciler_Depth(t *testing.T) {
	r := newTestReconciler(t, 0, 0)
	r.Seed(
		[]domain.PriceLevel{lvl(100, 5, 2), lvl(90, 3, 1), lvl(80, 2, 9)},
		[]domain.PriceLevel{lvl(110, 2, 1), lvl(120, 4, 1)},
	)

	state := r.State()
	wantBids := []string{"5", "8", "10"}
	for i, w := range wantBids {
		if state.Bids[i].Depth != w {
			t.Errorf("bid depth[%d] = %s, want %s", i, state.Bids[i].Depth, w)
		}
	}
	if state.Bids[2].Total != "9" {
		t.Errorf("Total should stay the order count, got %s", state.Bids[2].Total)
	}
	if state.Asks[1].Depth != "6" {
		t.Errorf("ask depth[1] = %s, want 6", state.Asks[1].Depth)
	}
}

func TestReconciler_LastUpdateTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := newTestReconciler(t, 0, 0, WithClock(func() time.Time { return now }))

	r.Seed(nil, nil)
	if !r.State().LastUpdateTime.Equal(now) {
		t.Errorf("seed time = %v", r.State().LastUpdateTime)
	}

	now = now.Add(time.Second)
	r.ApplyDelta([]domain.PriceLevel{lvl(1, 1, 1)}, nil)
	if !r.State().LastUpdateTime.Equal(now) {
		t.Errorf("delta time = %v, want %v", r.State().LastUpdateTime, now)
	}
}

func TestReconciler_HighlightLifecycle(t *testing.T) {
	var cleared atomic.Int32
	r := newTestReconciler(t, 0, 0, WithHighlightWindow(20*time.Millisecond))
	r.OnHighlightCleared(func() { cleared.Add(1) })
	r.Seed([]domain.PriceLevel{lvl(10, 1, 1), lvl(9, 1, 1)}, nil)

	r.ApplyDelta([]domain.PriceLevel{lvl(10, 2, 1)}, nil)

	state := r.State()
	if !state.Bids[0].IsChanged {
		t.Error("touched row should be flagged")
	}
	if state.Bids[1].IsChanged {
		t.Error("untouched row should not be flagged")
	}

	deadline := time.Now().Add(time.Second)
	for cleared.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if cleared.Load() == 0 {
		t.Fatal("highlight was never cleared")
	}
	if r.State().Bids[0].IsChanged {
		t.Error("flag should be cleared after the window")
	}
}

func TestReconciler_ChangedSetReplacedPerTick(t *testing.T) {
	r := newTestReconciler(t, 0, 0, WithHighlightWindow(time.Hour))
	r.Seed(nil, nil)

	r.ApplyDelta([]domain.PriceLevel{lvl(10, 1, 1)}, nil)
	r.ApplyDelta([]domain.PriceLevel{lvl(9, 1, 1)}, nil)

	state := r.State()
	if state.Bids[0].IsChanged {
		t.Error("previous tick's key should be dropped from the changed set")
	}
	if !state.Bids[1].IsChanged {
		t.Error("latest tick's key should be flagged")
	}
	if r.PendingHighlights() != 2 {
		t.Errorf("each tick schedules its own clear, got %d timers", r.PendingHighlights())
	}
}

func TestReconciler_StopCancelsTimers(t *testing.T) {
	var cleared atomic.Int32
	r := newTestReconciler(t, 0, 0, WithHighlightWindow(10*time.Millisecond))
	r.OnHighlightCleared(func() { cleared.Add(1) })
	r.Seed(nil, nil)

	r.ApplyDelta([]domain.PriceLevel{lvl(10, 1, 1)}, nil)
	r.Stop()

	if r.PendingHighlights() != 0 {
		t.Errorf("Expected no pending timers after Stop, got %d", r.PendingHighlights())
	}
	if touched := r.ApplyDelta([]domain.PriceLevel{lvl(11, 1, 1)}, nil); touched != 0 {
		t.Error("deltas after Stop should be ignored")
	}

	time.Sleep(40 * time.Millisecond)
	if cleared.Load() != 0 {
		t.Error("clear hook should not run after Stop")
	}
}

func TestReconciler_SeedAfterStopIgnored(t *testing.T) {
	r := newTestReconciler(t, 0, 0)
	r.Seed([]domain.PriceLevel{lvl(10, 1, 1)}, nil)
	before := r.State().LastUpdateTime
	r.Stop()

	r.Seed([]domain.PriceLevel{lvl(20, 1, 1), lvl(30, 1, 1)}, []domain.PriceLevel{lvl(40, 1, 1)})

	state := r.State()
	if got := prices(state.Bids); !equalStrings(got, []string{"10"}) {
		t.Errorf("bids = %v, want [10]", got)
	}
	if len(state.Asks) != 0 {
		t.Errorf("asks = %d, want 0", len(state.Asks))
	}
	if !state.LastUpdateTime.Equal(before) {
		t.Error("LastUpdateTime changed after Stop")
	}
}
