package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/Spok95/spendguard/internal/bot"
	"github.com/Spok95/spendguard/internal/config"
	"github.com/Spok95/spendguard/internal/coordinator"
	"github.com/Spok95/spendguard/internal/dialog"
	"github.com/Spok95/spendguard/internal/domain/spending"
	"github.com/Spok95/spendguard/internal/domain/users"
	"github.com/Spok95/spendguard/internal/infra/budgetapi"
	"github.com/Spok95/spendguard/internal/infra/db"
	"github.com/Spok95/spendguard/internal/infra/logger"
	"github.com/Spok95/spendguard/internal/scanner"
)

const (
	driverPostgres = "postgres"
	driverHTTP     = "http"
)

var errNeedPostgres = errors.New("this command needs store.driver: postgres")

type app struct {
	cfg   config.Config
	log   *slog.Logger
	loc   *time.Location
	clock clockwork.Clock
}

func loadApp(cmd *cobra.Command, logTo io.Writer) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.App.Timezone, err)
	}
	return &app{
		cfg:   cfg,
		log:   logger.New(cfg.App.Env, logTo),
		loc:   loc,
		clock: clockwork.NewRealClock(),
	}, nil
}

// backend хранилище по store.driver. ledger и pool есть только у postgres:
// им нужны выгрузка и состояния диалогов бота. resets есть у обоих.
type backend struct {
	store  coordinator.Store
	resets coordinator.ResetStore
	ledger *spending.Ledger
	pool   *pgxpool.Pool
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

func (a *app) openStore(ctx context.Context) (*backend, error) {
	switch a.cfg.Store.Driver {
	case driverPostgres:
		pool, err := db.Connect(ctx, a.cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		userID, err := users.LoadOrCreateID(a.cfg.App.StateDir)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if _, err := users.NewRepo(pool).Ensure(ctx, userID, a.cfg.DefaultLimit()); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure user settings: %w", err)
		}
		a.log.Debug("db connected", "user", userID)
		l := spending.NewLedger(spending.NewRepo(pool), userID, a.clock, a.loc)
		return &backend{store: l, resets: l, ledger: l, pool: pool}, nil
	case driverHTTP:
		a.log.Debug("using budget api", "url", a.cfg.Store.APIURL)
		c := budgetapi.New(a.cfg.Store.APIURL, a.cfg.Store.Timeout)
		return &backend{store: c, resets: budgetapi.NewResetState(c, a.cfg.App.StateDir)}, nil
	default:
		return nil, fmt.Errorf("unknown store.driver %q", a.cfg.Store.Driver)
	}
}

// settingsBot бот настроек в Telegram. Без Postgres диалоги живут в памяти,
// а выгрузки нет.
func (a *app) settingsBot(api *tgbotapi.BotAPI, bus bot.Requester, be *backend) *bot.Bot {
	var (
		states bot.States = dialog.NewMemory()
		export bot.Exporter
	)
	if be.pool != nil {
		states = dialog.NewRepo(be.pool)
	}
	if be.ledger != nil {
		export = be.ledger
	}
	return bot.New(api, a.log.With("component", "bot"), states, bus, export, a.cfg.Telegram.ChatID)
}

func (a *app) scannerConfig() scanner.Config {
	s := a.cfg.Scanner
	c := scanner.Config{
		CheckoutSelectors: s.CheckoutSelectors,
		TotalSelectors:    s.TotalSelectors,
		TotalLastMatch:    s.TotalLastMatch,
		Items: scanner.ItemSelectors{
			Name:      s.ItemNameSelector,
			Title:     s.ItemTitleSelector,
			Container: s.ItemContainerSelector,
			Price:     s.ItemPriceSelector,
			Quantity:  s.ItemQuantitySelector,
		},
		ObserveTimeout: s.ObserveTimeout,
		SettleDelay:    s.SettleDelay,
		TriggerDelay:   s.TriggerDelay,
	}
	// без отслеживания обязательных трат всё идёт в необязательные
	if a.cfg.Spending.TrackEssential {
		c.Classifier = scanner.Classifier{Keywords: s.EssentialKeywords}
	}
	return c
}
