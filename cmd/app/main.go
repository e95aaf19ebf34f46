package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderbook_go/internal/app"
	"orderbook_go/internal/server"
	"orderbook_go/internal/ui"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", app.DefaultConfigPath, "path to config.yaml")
	pprofAddr := flag.String("pprof", "", "pprof listen address (e.g. localhost:6060)")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config

	// 2. Pprof Server (for performance profiling)
	if *pprofAddr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", *pprofAddr))
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Sign in (the stream requires the token)
	if err := bootstrap.Authenticate(ctx); err != nil {
		slog.Error("❌ Authentication failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 5. HTTP API
	market, err := bootstrap.MarketConfig()
	if err != nil {
		slog.Error("❌ Failed to build market config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Server.Addr != "" {
		srv := server.New(cfg.Server.Addr, market.Pair, market.Levels, bootstrap.View, bootstrap.Metrics)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("HTTP server failed", slog.Any("error", err))
			}
		}()
		slog.InfoContext(ctx, "✅ HTTP server started", slog.String("addr", cfg.Server.Addr))
	}

	// 6. Book session
	viewer, err := bootstrap.NewViewer()
	if err != nil {
		slog.Error("❌ Failed to create viewer", slog.Any("error", err))
		os.Exit(1)
	}
	if err := viewer.Mount(ctx); err != nil {
		// 대시보드에서 [r]로 재시도 가능
		slog.Error("Order book session failed to start", slog.Any("error", err))
	}
	defer viewer.Unmount()

	slog.InfoContext(ctx, "✨ Order book viewer running", slog.String("pair", market.Pair.String()))

	// 7. Dashboard or headless
	if cfg.UI.Dashboard {
		dash, err := ui.NewDashboard(ui.DashboardConfig{
			Pair:             market.Pair,
			Levels:           market.Levels,
			MobileBreakpoint: cfg.UI.MobileBreakpoint,
			RedrawInterval:   time.Duration(cfg.UI.RedrawMS) * time.Millisecond,
		}, bootstrap.View, viewer)
		if err != nil {
			slog.Error("❌ Failed to create dashboard", slog.Any("error", err))
			return
		}
		if err := dash.Run(ctx); err != nil {
			slog.Error("Dashboard exited with error", slog.Any("error", err))
		}
		stop()
	} else {
		<-ctx.Done()
	}

	slog.Info("👋 Shutting down gracefully...")
}
