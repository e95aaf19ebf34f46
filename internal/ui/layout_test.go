package ui

import (
	"strings"
	"testing"
	"time"

	"orderbook_go/internal/domain"

	"github.com/shopspring/decimal"
)

func row(price, amount, total string) domain.DisplayRow {
	return domain.DisplayRow{
		Price:       price,
		Amount:      amount,
		Total:       total,
		PriceValue:  decimal.RequireFromString(price),
		AmountValue: decimal.RequireFromString(amount),
	}
}

func TestColumns(t *testing.T) {
	tests := []struct {
		name    string
		side    domain.Side
		mobile  bool
		reverse bool
		want    string
	}{
		{"desktop bid", domain.SideBid, false, false, "Price,Amount,Total"},
		{"desktop bid reversed", domain.SideBid, false, true, "Total,Amount,Price"},
		{"desktop ask reversed", domain.SideAsk, false, true, "Price,Amount,Total"},
		{"mobile bid reversed", domain.SideBid, true, true, "Price,Amount,Total"},
		{"mobile ask", domain.SideAsk, true, false, "Price,Amount,Total"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(HeaderLabels(tt.side, tt.mobile, tt.reverse), ",")
			if got != tt.want {
				t.Errorf("HeaderLabels = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRowCells_DoesNotMutate(t *testing.T) {
	r := row("0.0001", "2.5", "3")
	r.IsChanged = true
	before := r

	cells := RowCells(r, domain.SideBid, false, true)
	if strings.Join(cells, ",") != "3,2.5,0.0001" {
		t.Errorf("RowCells = %v", cells)
	}
	if r != before {
		t.Error("row was mutated")
	}
}

func TestNewVolumeBar(t *testing.T) {
	tests := []struct {
		name        string
		side        domain.Side
		percent     float64
		reversed    bool
		wantPercent float64
		wantAnchor  Anchor
	}{
		{"bid", domain.SideBid, 30, false, 30, AnchorLeft},
		{"bid reversed", domain.SideBid, 30, true, 30, AnchorRight},
		{"ask", domain.SideAsk, 30, false, 30, AnchorRight},
		{"ask reversed", domain.SideAsk, 30, true, 30, AnchorRight},
		{"clamp high", domain.SideAsk, 250, false, 100, AnchorRight},
		{"clamp low", domain.SideBid, -5, false, 0, AnchorLeft},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := NewVolumeBar(tt.side, tt.percent, tt.reversed)
			if bar.Percent != tt.wantPercent || bar.Anchor != tt.wantAnchor {
				t.Errorf("got %+v", bar)
			}
		})
	}
}

func TestVolumeBar_Covers(t *testing.T) {
	left := NewVolumeBar(domain.SideBid, 50, false)
	right := NewVolumeBar(domain.SideAsk, 50, false)

	if !left.Covers(0, 10) || left.Covers(5, 10) {
		t.Error("left bar should cover cells 0..4")
	}
	if right.Covers(4, 10) || !right.Covers(5, 10) || !right.Covers(9, 10) {
		t.Error("right bar should cover cells 5..9")
	}
	if left.Cells(0) != 0 {
		t.Error("zero width covers nothing")
	}
}

func TestFillPercent(t *testing.T) {
	r := row("1", "2.5", "1")

	if got := FillPercent(r, decimal.NewFromInt(10)); got != 25 {
		t.Errorf("FillPercent = %v, want 25", got)
	}
	if got := FillPercent(r, decimal.Zero); got != 0 {
		t.Errorf("FillPercent with zero max = %v, want 0", got)
	}

	bids := []domain.DisplayRow{row("2", "1", "1"), row("1", "4", "1")}
	asks := []domain.DisplayRow{row("3", "3", "1")}
	if got := MaxAmount(bids, asks); !got.Equal(decimal.NewFromInt(4)) {
		t.Errorf("MaxAmount = %s, want 4", got)
	}
}

func TestWindow(t *testing.T) {
	rows := []domain.DisplayRow{row("3", "1", "1"), row("2", "1", "1"), row("1", "1", "1")}

	if got := Window(rows, 2); len(got) != 2 || got[0].Price != "3" || got[1].Price != "2" {
		t.Errorf("Window(2) = %v", got)
	}
	if got := Window(rows, 0); len(got) != 3 {
		t.Errorf("Window(0) should keep all, got %d", len(got))
	}
	if got := Window(rows, 10); len(got) != 3 {
		t.Errorf("Window(10) should keep all, got %d", len(got))
	}

	w := Window(rows, 1)
	_ = append(w, row("9", "9", "9"))
	if rows[1].Price != "2" {
		t.Error("appending to a window must not overwrite the source")
	}
}

func TestRenderSide(t *testing.T) {
	rows := []domain.DisplayRow{row("0.0001", "5", "1"), row("0.00009", "10", "2")}
	rows[0].IsChanged = true

	lines := RenderSide(rows, domain.SideAsk, RenderOptions{Width: 30, MaxAmount: decimal.NewFromInt(10)})
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}

	first := lines[0]
	if len(first.Text) != 30 {
		t.Errorf("line width = %d, want 30", len(first.Text))
	}
	if !strings.HasPrefix(first.Text, "0.0001") || !strings.HasSuffix(first.Text, "1") {
		t.Errorf("unexpected alignment %q", first.Text)
	}
	if !first.Changed || lines[1].Changed {
		t.Error("changed flag not carried")
	}
	if first.Bar.Percent != 50 || lines[1].Bar.Percent != 100 {
		t.Errorf("bar percents = %v, %v", first.Bar.Percent, lines[1].Bar.Percent)
	}

	header := RenderHeader(domain.SideBid, RenderOptions{Width: 30, Reverse: true})
	if !strings.HasPrefix(header, "Total") || !strings.HasSuffix(header, "Price") {
		t.Errorf("unexpected header %q", header)
	}
}

func TestRenderSide_Truncates(t *testing.T) {
	rows := []domain.DisplayRow{row("123456789012.34567890123456789", "1", "1")}
	lines := RenderSide(rows, domain.SideBid, RenderOptions{Width: 30})
	if len(lines[0].Text) != 30 {
		t.Errorf("line width = %d, want 30", len(lines[0].Text))
	}
	if !strings.Contains(lines[0].Text, "~") {
		t.Error("expected truncation marker")
	}
}

func TestStatusLine(t *testing.T) {
	at := time.Date(2026, 1, 2, 13, 4, 5, 0, time.UTC)
	pair := domain.Pair{Base: "STRK", Quote: "USDC"}

	tests := []struct {
		name string
		view domain.ViewState
		want []string
	}{
		{"loading", domain.ViewState{Status: domain.StatusLoading}, []string{"Loading"}},
		{"error", domain.ViewState{Status: domain.StatusError, Error: "Failed to fetch order book: boom"}, []string{"boom", "Retry"}},
		{"active", domain.ViewState{Pair: pair, Status: domain.StatusActive, Book: domain.OrderBookState{LastUpdateTime: at}}, []string{"Connected", "STRK/USDC", "13:04:05"}},
		{"disconnected", domain.ViewState{Pair: pair, Status: domain.StatusDisconnected, Error: "Disconnected from order book stream", UpdatedAt: at}, []string{"Disconnected", "stream", "13:04:05"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StatusLine(tt.view)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("StatusLine = %q, missing %q", got, w)
				}
			}
		})
	}
}

func TestIsMobile(t *testing.T) {
	if !IsMobile(80, 100) || IsMobile(120, 100) {
		t.Error("breakpoint comparison wrong")
	}
}
