package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"orderbook_go/internal/domain"
	"orderbook_go/internal/service"

	"github.com/mum4k/termdash"
	"github.com/mum4k/termdash/cell"
	"github.com/mum4k/termdash/container"
	"github.com/mum4k/termdash/container/grid"
	"github.com/mum4k/termdash/keyboard"
	"github.com/mum4k/termdash/linestyle"
	"github.com/mum4k/termdash/terminal/tcell"
	"github.com/mum4k/termdash/terminal/terminalapi"
	"github.com/mum4k/termdash/widgets/text"
)

const defaultRedrawInterval = 250 * time.Millisecond

// Controller handles the dashboard's key actions.
type Controller interface {
	Reload(ctx context.Context) error
	Resync(ctx context.Context) error
	SetReverse(reverse bool) error
}

// DashboardConfig is the static part of the dashboard.
type DashboardConfig struct {
	Pair             domain.Pair
	Levels           int
	MobileBreakpoint int
	RedrawInterval   time.Duration
}

// Dashboard renders the book in the terminal.
type Dashboard struct {
	cfg    DashboardConfig
	view   *service.BookView
	ctrl   Controller
	logger *slog.Logger

	status *text.Text
	bids   *text.Text
	asks   *text.Text
	footer *text.Text

	mu    sync.Mutex
	width int
	note  string
}

// NewDashboard creates the widgets. Run draws them.
func NewDashboard(cfg DashboardConfig, view *service.BookView, ctrl Controller) (*Dashboard, error) {
	if cfg.RedrawInterval <= 0 {
		cfg.RedrawInterval = defaultRedrawInterval
	}
	d := &Dashboard{
		cfg:    cfg,
		view:   view,
		ctrl:   ctrl,
		logger: slog.Default().With("module", "dashboard"),
	}

	var err error
	if d.status, err = text.New(); err != nil {
		return nil, fmt.Errorf("failed to create status widget: %v", err)
	}
	if d.bids, err = text.New(); err != nil {
		return nil, fmt.Errorf("failed to create bids widget: %v", err)
	}
	if d.asks, err = text.New(); err != nil {
		return nil, fmt.Errorf("failed to create asks widget: %v", err)
	}
	if d.footer, err = text.New(); err != nil {
		return nil, fmt.Errorf("failed to create footer widget: %v", err)
	}
	return d, nil
}

func (d *Dashboard) gridLayout() ([]container.Option, error) {
	builder := grid.New()
	builder.Add(
		grid.RowHeightPerc(10,
			grid.Widget(d.status,
				container.Border(linestyle.Light),
				container.BorderTitle(fmt.Sprintf(" Order Book %s ", d.cfg.Pair)),
			),
		),
		grid.RowHeightPerc(80,
			grid.ColWidthPerc(50,
				grid.Widget(d.bids,
					container.Border(linestyle.Light),
					container.BorderTitle(" Bids "),
				),
			),
			grid.ColWidthPerc(50,
				grid.Widget(d.asks,
					container.Border(linestyle.Light),
					container.BorderTitle(" Asks "),
				),
			),
		),
		grid.RowHeightPerc(10,
			grid.Widget(d.footer,
				container.Border(linestyle.Light),
			),
		),
	)
	return builder.Build()
}

// Run draws until ctx is done or the user quits.
func (d *Dashboard) Run(ctx context.Context) error {
	t, err := tcell.New(tcell.ColorMode(terminalapi.ColorMode256))
	if err != nil {
		return fmt.Errorf("failed to initialize terminal: %v", err)
	}
	defer t.Close()

	gridOpts, err := d.gridLayout()
	if err != nil {
		return fmt.Errorf("failed to build grid layout: %v", err)
	}
	c, err := container.New(t, gridOpts...)
	if err != nil {
		return fmt.Errorf("failed to create root container: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.setWidth(t.Size().X)
	go d.listen(ctx, t)

	return termdash.Run(ctx, t, c,
		termdash.KeyboardSubscriber(d.keyHandler(ctx, cancel)),
		termdash.RedrawInterval(d.cfg.RedrawInterval),
	)
}

func (d *Dashboard) listen(ctx context.Context, t terminalapi.Terminal) {
	ticker := time.NewTicker(d.cfg.RedrawInterval)
	defer ticker.Stop()

	d.refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.view.Updates():
			d.refresh()
		case <-ticker.C:
			// 터미널 크기 변경 반영
			d.setWidth(t.Size().X)
			d.refresh()
		}
	}
}

func (d *Dashboard) keyHandler(ctx context.Context, quit context.CancelFunc) func(*terminalapi.Keyboard) {
	return func(k *terminalapi.Keyboard) {
		switch k.Key {
		case keyboard.KeyEsc, keyboard.KeyCtrlC, 'q', 'Q':
			quit()
		case 'r', 'R':
			d.act("Reloading...", func() error { return d.ctrl.Reload(ctx) })
		case 's', 'S':
			d.act("Resyncing snapshot...", func() error { return d.ctrl.Resync(ctx) })
		case 'v', 'V':
			reverse := !d.view.Reverse()
			d.act("", func() error { return d.ctrl.SetReverse(reverse) })
		}
	}
}

// act runs fn off the event loop and reports the outcome in the footer.
func (d *Dashboard) act(note string, fn func() error) {
	d.setNote(note)
	go func() {
		if err := fn(); err != nil {
			d.logger.Warn("Dashboard action failed", slog.Any("error", err))
			d.setNote("Error: " + err.Error())
			return
		}
		d.setNote("")
	}()
}

func (d *Dashboard) setNote(note string) {
	d.mu.Lock()
	d.note = note
	d.mu.Unlock()
	d.refresh()
}

func (d *Dashboard) setWidth(w int) {
	d.mu.Lock()
	d.width = w
	d.mu.Unlock()
}

// refresh rewrites every widget from the latest view.
func (d *Dashboard) refresh() {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, ok := d.view.Get(d.cfg.Pair)
	if !ok {
		v = domain.ViewState{Pair: d.cfg.Pair, Status: domain.StatusIdle}
	}

	mobile := IsMobile(d.width, d.cfg.MobileBreakpoint)
	bids := Window(v.Book.Bids, d.cfg.Levels)
	asks := Window(v.Book.Asks, d.cfg.Levels)
	opts := RenderOptions{
		Mobile:    mobile,
		Reverse:   d.view.Reverse(),
		Width:     d.width/2 - 4, // 테두리와 여백
		MaxAmount: MaxAmount(bids, asks),
	}

	d.status.Reset()
	d.status.Write(StatusLine(v), text.WriteCellOpts(statusColor(v.Status)))

	d.writeSide(d.bids, bids, domain.SideBid, opts, v.Status == domain.StatusLoading)
	d.writeSide(d.asks, asks, domain.SideAsk, opts, v.Status == domain.StatusLoading)

	d.footer.Reset()
	footer := "[r] retry  [s] resync  [v] reverse bids  [q] quit"
	if d.note != "" {
		footer += "   " + d.note
	}
	d.footer.Write(footer)
}

func (d *Dashboard) writeSide(w *text.Text, rows []domain.DisplayRow, side domain.Side, opts RenderOptions, loading bool) {
	w.Reset()
	w.Write(RenderHeader(side, opts)+"\n", text.WriteCellOpts(cell.FgColor(cell.ColorNumber(244)), cell.Bold()))
	if loading {
		w.Write("Loading order book...")
		return
	}

	fg := cell.ColorGreen
	barBg := cell.ColorNumber(22)
	if side == domain.SideAsk {
		fg = cell.ColorRed
		barBg = cell.ColorNumber(52)
	}

	for _, line := range RenderSide(rows, side, opts) {
		runes := []rune(line.Text)
		width := len(runes)
		start := 0
		for start < width {
			covered := line.Bar.Covers(start, width)
			end := start + 1
			for end < width && line.Bar.Covers(end, width) == covered {
				end++
			}

			cellOpts := []cell.Option{cell.FgColor(fg)}
			if covered {
				cellOpts = append(cellOpts, cell.BgColor(barBg))
			}
			if line.Changed {
				cellOpts = append(cellOpts, cell.Bold(), cell.Inverse())
			}
			w.Write(string(runes[start:end]), text.WriteCellOpts(cellOpts...))
			start = end
		}
		w.Write("\n")
	}
}

func statusColor(s domain.SessionStatus) cell.Option {
	switch s {
	case domain.StatusActive:
		return cell.FgColor(cell.ColorGreen)
	case domain.StatusError, domain.StatusDisconnected:
		return cell.FgColor(cell.ColorRed)
	default:
		return cell.FgColor(cell.ColorYellow)
	}
}
