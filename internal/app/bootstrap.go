package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"orderbook_go/internal/domain"
	"orderbook_go/internal/infra"
	"orderbook_go/internal/infra/akira"
	"orderbook_go/internal/infra/storage"
	"orderbook_go/internal/service"
	"orderbook_go/internal/session"
)

// DefaultConfigPath is where Initialize looks for the YAML config.
const DefaultConfigPath = "configs/config.yaml"

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
	Client  *akira.Client
	View    *service.BookView
	Metrics *infra.Metrics
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{
		View:    service.NewBookView(),
		Metrics: infra.GlobalMetrics,
	}
}

// Initialize performs core system initialization (config, logger, DB, client)
func (b *Bootstrap) Initialize(configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	slog.Info("🚀 Bootstrapping order book viewer...", slog.String("version", cfg.App.Version))

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	// 4. Decimals registry
	if err := b.SyncAssets(); err != nil {
		return err
	}

	// 5. UI preference survives restarts
	b.View.SetReverse(store.LoadBool(storage.KeyReverse, cfg.UI.Reverse))

	// 6. Venue REST client
	b.Client = akira.NewClient(cfg.API.HTTPURL,
		akira.WithRateLimit(cfg.API.RateLimitPerSec),
		akira.WithTimeout(time.Duration(cfg.API.TimeoutSec)*time.Second),
	)
	slog.Info("✅ Venue client ready", slog.String("url", cfg.API.HTTPURL))

	return nil
}

// SyncAssets registers configured assets the registry does not know yet.
// Stored entries win over config.
func (b *Bootstrap) SyncAssets() error {
	slog.Info("🔄 Syncing asset decimals...")

	added := 0
	for sym, dec := range b.Config.Market.Decimals {
		existing, err := b.Storage.GetAsset(sym)
		if err != nil {
			return fmt.Errorf("sync asset %s: %w", sym, err)
		}
		if existing != nil {
			continue
		}
		asset := &domain.Asset{
			Symbol:    sym,
			Decimals:  dec,
			IsFeeCoin: sym == b.Config.Market.FeeToken,
		}
		if err := b.Storage.UpsertAsset(asset); err != nil {
			return fmt.Errorf("sync asset %s: %w", sym, err)
		}
		added++
	}

	slog.Info("✨ Asset decimals synced", slog.Int("added", added), slog.Int("configured", len(b.Config.Market.Decimals)))
	return nil
}

// Authenticate signs in with the configured trading account. The token is
// kept on the client and handed to every stream it builds.
func (b *Bootstrap) Authenticate(ctx context.Context) error {
	addr := b.Config.API.TradingAddress
	signer := akira.NewHMACSigner(addr, b.Config.API.SignerPrivateKey)
	if _, err := b.Client.Auth(ctx, signer, addr); err != nil {
		return err
	}
	slog.Info("✅ Authenticated", slog.String("account", addr))
	return nil
}

// MarketConfig returns the session market with decimals read back from the
// registry.
func (b *Bootstrap) MarketConfig() (domain.MarketConfig, error) {
	m := b.Config.MarketConfig()
	decimals, err := b.Storage.DecimalsMap()
	if err != nil {
		return domain.MarketConfig{}, err
	}
	for k, v := range decimals {
		m.DecimalsByAsset[k] = v
	}
	return m, nil
}

// NewViewer wires a viewer for the configured market.
func (b *Bootstrap) NewViewer() (*Viewer, error) {
	market, err := b.MarketConfig()
	if err != nil {
		return nil, err
	}

	wsURL := b.Config.API.WSURL
	client := b.Client
	metrics := b.Metrics
	newStream := func() session.Stream {
		return akira.NewStream(wsURL, client.Token, metrics)
	}

	return NewViewer(market, client, newStream, b.View, b.Storage,
		session.WithMetrics(metrics),
		session.WithHighlightWindow(time.Duration(b.Config.UI.HighlightMS)*time.Millisecond),
	), nil
}

// Close releases the database.
func (b *Bootstrap) Close() {
	if b.Storage == nil {
		return
	}
	if err := b.Storage.Close(); err != nil {
		slog.Warn("Failed to close storage", slog.Any("error", err))
	}
}
