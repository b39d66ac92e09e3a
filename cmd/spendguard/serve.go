package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Spok95/spendguard/internal/confirm"
	"github.com/Spok95/spendguard/internal/coordinator"
	"github.com/Spok95/spendguard/internal/infra/browser"
	"github.com/Spok95/spendguard/internal/infra/db"
	httpx "github.com/Spok95/spendguard/internal/infra/http"
	"github.com/Spok95/spendguard/internal/infra/metrics"
	"github.com/Spok95/spendguard/internal/infra/notify"
	"github.com/Spok95/spendguard/internal/messaging"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Watch the browser for checkout pages and guard the monthly limit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, os.Stdout)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	log := a.log
	cfg := a.cfg

	if cfg.Store.Driver == driverPostgres {
		if err := db.Migrate(cfg.Postgres.DSN, log); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		log.Info("migrations applied")
	}

	be, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer be.Close()

	fallback, err := coordinator.LoadFallback(cfg.Spending.FallbackFile)
	if err != nil {
		return fmt.Errorf("fallback budget: %w", err)
	}

	var (
		notifier coordinator.Notifier
		tgAPI    *tgbotapi.BotAPI
	)
	if cfg.Telegram.Token != "" {
		tgAPI, err = notify.Connect(cfg.Telegram.Token, log)
		if err != nil {
			return err
		}
		notifier = notify.NewTelegram(tgAPI, cfg.Telegram.ChatID, log)
	}

	patterns, err := browser.CompilePatterns(cfg.Browser.CheckoutURLPatterns)
	if err != nil {
		return err
	}
	b, err := browser.Connect(ctx, cfg.Browser.ControlURL, cfg.Browser.Headless)
	if err != nil {
		return err
	}
	if cfg.Browser.ControlURL == "" {
		// свой Chrome закрываем, чужой оставляем пользователю
		defer func() { _ = b.Close() }()
	}
	log.Info("browser connected")

	m := metrics.New(prometheus.DefaultRegisterer)
	bus := messaging.NewBus(log, cfg.App.RequestTimeout)
	tabs := messaging.NewTabs()
	popups := browser.NewPopups(b, cfg.HTTP.PublicURL, cfg.Browser.PopupWidth, cfg.Browser.PopupHeight, log)

	coord := coordinator.New(coordinator.Deps{
		Log:      log,
		Store:    be.store,
		Windows:  popups,
		Tabs:     tabs,
		Loop:     bus,
		Metrics:  m,
		Clock:    a.clock,
		Notifier: notifier,
		Fallback: &fallback,
	})
	coord.Register(bus)
	defer coord.Close()

	confirmUI := confirm.NewHandler(log, bus)
	routes := []httpx.Routes{confirmUI}
	if be.ledger != nil {
		routes = append(routes, httpx.NewSpendingAPI(log, be.ledger))
	}
	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, routes...)

	watcher := browser.NewWatcher(browser.WatcherDeps{
		Log:            log,
		Browser:        b,
		Bus:            bus,
		Tabs:           tabs,
		Popups:         popups,
		Patterns:       patterns,
		Scanner:        a.scannerConfig(),
		Clock:          a.clock,
		Metrics:        m,
		OnWindowClosed: confirmUI.Forget,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bus.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	if be.resets != nil {
		resetter := coordinator.NewResetter(be.resets, a.clock, a.loc, log, m)
		g.Go(func() error { return resetter.Run(gctx) })
	}
	if tgAPI != nil && cfg.Telegram.Commands {
		settings := a.settingsBot(tgAPI, bus, be)
		g.Go(func() error { return settings.Run(gctx, 30) })
	}
	g.Go(func() error {
		log.Info("HTTP server started", "addr", cfg.HTTP.Addr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("graceful shutdown complete")
	return err
}
