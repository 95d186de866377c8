// Package app assembles the process: configuration, stores, market data,
// broker, notifier, engine and HTTP surface, and runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autotrader/internal/config"
	"autotrader/internal/engine"
	"autotrader/internal/gateway/binance"
	"autotrader/internal/gateway/broker"
	"autotrader/internal/gateway/notifier"
	"autotrader/internal/logger"
	"autotrader/internal/market"
	"autotrader/internal/scheduler"
	"autotrader/internal/service"
	"autotrader/internal/store/gormstore"
	"autotrader/internal/store/history"
	"autotrader/internal/strategy"
	httpapi "autotrader/internal/transport/http"
)

type App struct {
	cfg    *config.Config
	store  *gormstore.GormStore
	hist   *history.Store
	source market.Source
	sched  *engine.Scheduler
	svc    *service.Service
	server *httpapi.Server
	ticker *scheduler.Ticker
}

// New wires every component from the loaded configuration. Nothing is
// started; call Run.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app requires a configuration")
	}
	logger.SetLevel(cfg.Log.Level)

	store, err := gormstore.NewGormStore(cfg.Store.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open strategy store failed: %w", err)
	}
	sqlDB, err := store.SQLDB()
	if err != nil {
		store.Close()
		return nil, err
	}
	hist := &history.Store{}
	if err := hist.UseExternalDB(sqlDB); err != nil {
		store.Close()
		return nil, fmt.Errorf("init signal history failed: %w", err)
	}

	source, err := binance.New(binance.Config{
		RESTBaseURL:  cfg.Market.RESTBaseURL,
		HTTPTimeout:  cfg.Market.HTTPTimeout,
		ProxyEnabled: cfg.Market.ProxyEnabled,
		RESTProxyURL: cfg.Market.RESTProxyURL,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init market source failed: %w", err)
	}

	brk, err := buildBroker(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	var notify notifier.TextNotifier = notifier.Noop{}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		notify = notifier.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		logger.Infof("telegram notifications enabled")
	}

	var validator service.ParamsValidator
	if cfg.Plugins.TemplateFile != "" {
		registry, err := strategy.NewRegistry(cfg.Plugins.TemplateFile)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("load plugin templates failed: %w", err)
		}
		validator = registry
	}

	cal, err := market.NewCalendar(cfg.Engine.Timezone)
	if err != nil {
		store.Close()
		return nil, err
	}

	sched := engine.NewScheduler(source, brk, hist, notify, cal, cfg.Engine.Workers)
	svc := service.New(sched, store, hist, validator)

	server, err := httpapi.NewServer(cfg.Server.Addr, svc)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &App{
		cfg:    cfg,
		store:  store,
		hist:   hist,
		source: source,
		sched:  sched,
		svc:    svc,
		server: server,
	}, nil
}

func buildBroker(cfg *config.Config) (broker.Broker, error) {
	switch cfg.Broker.Mode {
	case "binance":
		return broker.NewBinance(broker.BinanceConfig{
			APIKey:      cfg.Broker.APIKey,
			APISecret:   cfg.Broker.APISecret,
			HTTPTimeout: cfg.Market.HTTPTimeout,
		})
	default:
		logger.Infof("paper broker active, equity=%.2f", cfg.Broker.PaperEquity)
		return broker.NewPaper(cfg.Broker.PaperEquity), nil
	}
}

// Run starts the tick loop and the HTTP server and blocks until ctx is
// cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.svc.Recover(ctx); err != nil {
		return err
	}
	a.bootstrap(ctx)

	a.ticker = scheduler.NewTicker(ctx, a.cfg.Engine.TickInterval)
	a.ticker.RunImmediately = true
	go a.ticker.Start(func() {
		a.sched.Tick(ctx)
		a.svc.PersistAll(ctx)
	})

	logger.Infof("serving on %s, broker=%s, tick=%s",
		a.server.Addr(), a.cfg.Broker.Mode, a.cfg.Engine.TickInterval)
	err := a.server.Start(ctx)
	a.shutdown()
	return err
}

// bootstrap registers strategies declared in the config file. Strategies
// already present from recovery are left untouched.
func (a *App) bootstrap(ctx context.Context) {
	for _, cfg := range a.cfg.Bootstrap {
		if _, err := a.svc.Create(ctx, cfg); err != nil {
			if errors.Is(err, engine.ErrAlreadyExists) {
				logger.Debugf("bootstrap strategy %s already registered", cfg.ID)
				continue
			}
			logger.Warnf("bootstrap strategy %s rejected: %v", cfg.ID, err)
		}
	}
}

func (a *App) shutdown() {
	logger.Infof("shutting down")
	a.sched.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.svc.PersistAll(ctx)

	if err := a.hist.Close(); err != nil {
		logger.Warnf("closing signal history failed: %v", err)
	}
	if err := a.store.Close(); err != nil {
		logger.Warnf("closing strategy store failed: %v", err)
	}
	if err := a.source.Close(); err != nil {
		logger.Warnf("closing market source failed: %v", err)
	}
	logger.Infof("shutdown complete")
}
