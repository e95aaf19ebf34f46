package ui

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"orderbook_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Column is one cell of a book row.
type Column int

const (
	ColPrice Column = iota
	ColAmount
	ColTotal
)

// Label returns the header text for the column.
func (c Column) Label() string {
	switch c {
	case ColAmount:
		return "Amount"
	case ColTotal:
		return "Total"
	default:
		return "Price"
	}
}

// Columns returns the column order for a side. On desktop the bid column can
// be mirrored (total, amount, price) so both sides meet at the price.
func Columns(side domain.Side, mobile, reverse bool) []Column {
	if !mobile && side == domain.SideBid && reverse {
		return []Column{ColTotal, ColAmount, ColPrice}
	}
	return []Column{ColPrice, ColAmount, ColTotal}
}

// HeaderLabels returns the header texts in column order.
func HeaderLabels(side domain.Side, mobile, reverse bool) []string {
	cols := Columns(side, mobile, reverse)
	labels := make([]string, len(cols))
	for i, c := range cols {
		labels[i] = c.Label()
	}
	return labels
}

// RowCells returns the row's values in column order.
func RowCells(row domain.DisplayRow, side domain.Side, mobile, reverse bool) []string {
	cols := Columns(side, mobile, reverse)
	cells := make([]string, len(cols))
	for i, c := range cols {
		switch c {
		case ColPrice:
			cells[i] = row.Price
		case ColAmount:
			cells[i] = row.Amount
		case ColTotal:
			cells[i] = row.Total
		}
	}
	return cells
}

// Anchor is the edge a volume bar grows from.
type Anchor int

const (
	AnchorLeft Anchor = iota
	AnchorRight
)

// VolumeBar is the depth shading behind a row.
type VolumeBar struct {
	Side    domain.Side
	Percent float64 // 0..100
	Anchor  Anchor
}

// NewVolumeBar clamps percent to [0, 100]. A reversed bar grows from the
// right; otherwise bids grow from the left and asks from the right.
func NewVolumeBar(side domain.Side, percent float64, reversed bool) VolumeBar {
	if math.IsNaN(percent) || percent < 0 {
		percent = 0
	}
	percent = math.Min(100, percent)

	anchor := AnchorRight
	if !reversed && side == domain.SideBid {
		anchor = AnchorLeft
	}
	return VolumeBar{Side: side, Percent: percent, Anchor: anchor}
}

// BarReversed reports whether a side's bars are mirrored. Bid bars are
// mirrored unless the bid columns already are.
func BarReversed(side domain.Side, reverse bool) bool {
	return side == domain.SideBid && !reverse
}

// Cells returns how many of width cells the bar covers.
func (b VolumeBar) Cells(width int) int {
	if width <= 0 {
		return 0
	}
	return int(math.Round(b.Percent / 100 * float64(width)))
}

// Covers reports whether cell i of a width-wide line is under the bar.
func (b VolumeBar) Covers(i, width int) bool {
	n := b.Cells(width)
	if b.Anchor == AnchorLeft {
		return i < n
	}
	return i >= width-n
}

// FillPercent is the row amount relative to maxAmount, in percent.
func FillPercent(row domain.DisplayRow, maxAmount decimal.Decimal) float64 {
	if !maxAmount.IsPositive() {
		return 0
	}
	return row.AmountValue.Div(maxAmount).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// MaxAmount returns the largest amount across all given rows.
func MaxAmount(sides ...[]domain.DisplayRow) decimal.Decimal {
	top := decimal.Zero
	for _, rows := range sides {
		for _, r := range rows {
			if r.AmountValue.GreaterThan(top) {
				top = r.AmountValue
			}
		}
	}
	return top
}

// Window returns the best levels rows. levels <= 0 keeps everything.
// The input slice is not modified.
func Window(rows []domain.DisplayRow, levels int) []domain.DisplayRow {
	if levels <= 0 || levels >= len(rows) {
		return rows
	}
	return rows[:levels:levels]
}

// IsMobile reports whether a width falls below the breakpoint.
func IsMobile(width, breakpoint int) bool {
	return width < breakpoint
}

// RenderOptions controls RenderSide.
type RenderOptions struct {
	Mobile    bool
	Reverse   bool
	Width     int             // line width in cells
	MaxAmount decimal.Decimal // bar scale; zero disables bars
}

// Line is one rendered row.
type Line struct {
	Text    string // fixed width
	Cells   []string
	Bar     VolumeBar
	Changed bool
}

const minColumnWidth = 6

// RenderSide lays rows out as fixed-width text. The first column is left
// aligned, the others right aligned.
func RenderSide(rows []domain.DisplayRow, side domain.Side, opts RenderOptions) []Line {
	colWidth := max(opts.Width/3, minColumnWidth)
	reversed := BarReversed(side, opts.Reverse)

	lines := make([]Line, 0, len(rows))
	for _, row := range rows {
		cells := RowCells(row, side, opts.Mobile, opts.Reverse)
		lines = append(lines, Line{
			Text:    joinCells(cells, colWidth),
			Cells:   cells,
			Bar:     NewVolumeBar(side, FillPercent(row, opts.MaxAmount), reversed),
			Changed: row.IsChanged,
		})
	}
	return lines
}

// RenderHeader lays out the header labels like RenderSide does rows.
func RenderHeader(side domain.Side, opts RenderOptions) string {
	colWidth := max(opts.Width/3, minColumnWidth)
	return joinCells(HeaderLabels(side, opts.Mobile, opts.Reverse), colWidth)
}

func joinCells(cells []string, width int) string {
	var sb strings.Builder
	for i, c := range cells {
		c = fit(c, width)
		if i == 0 {
			sb.WriteString(c)
			sb.WriteString(strings.Repeat(" ", width-utf8.RuneCountInString(c)))
			continue
		}
		sb.WriteString(strings.Repeat(" ", width-utf8.RuneCountInString(c)))
		sb.WriteString(c)
	}
	return sb.String()
}

// fit truncates s to width runes, keeping one cell of padding.
func fit(s string, width int) string {
	limit := width - 1
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "~"
}

// StatusLine is the one-line connection summary above the book.
func StatusLine(v domain.ViewState) string {
	switch v.Status {
	case domain.StatusIdle:
		return "Idle"
	case domain.StatusLoading:
		return "Loading order book..."
	case domain.StatusError:
		return fmt.Sprintf("%s  [r] Retry", v.Error)
	}

	updated := v.Book.LastUpdateTime
	if updated.IsZero() {
		updated = v.UpdatedAt
	}
	last := "Last updated: " + updated.Format("15:04:05")

	if v.Connected() {
		return fmt.Sprintf("● Connected  %s  %s", v.Pair, last)
	}
	if v.Error != "" {
		return fmt.Sprintf("○ Disconnected  %s  %s  %s", v.Pair, v.Error, last)
	}
	return fmt.Sprintf("○ Disconnected  %s  %s", v.Pair, last)
}
