package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ThurX360/WIZFUT/internal/alerting"
	"github.com/ThurX360/WIZFUT/internal/config"
	"github.com/ThurX360/WIZFUT/internal/dedup"
	"github.com/ThurX360/WIZFUT/internal/detect"
	"github.com/ThurX360/WIZFUT/internal/enrich"
	"github.com/ThurX360/WIZFUT/internal/history"
	"github.com/ThurX360/WIZFUT/internal/scheduler"
	"github.com/ThurX360/WIZFUT/internal/service"
	"github.com/ThurX360/WIZFUT/internal/source"
	"github.com/ThurX360/WIZFUT/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() (source.Source, error) {
	switch a.Config.Source.Kind {
	case config.SourceCSV:
		return source.NewCSV(source.CSVOptions{
			Path:         a.Config.Source.CSV.Path,
			Columns:      a.Config.Source.CSV.Columns,
			WatchModTime: true,
		}, a.Logger), nil
	case config.SourceFutwiz:
		cfg := a.Config.Source.Futwiz
		return source.NewFutwiz(source.FutwizOptions{
			BaseURL:   cfg.BaseURL,
			Platform:  cfg.Platform,
			Pages:     cfg.Pages,
			Timeout:   cfg.Timeout,
			PageDelay: cfg.PageDelay,
			UserAgent: cfg.UserAgent,
		}, a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", a.Config.Source.Kind)
	}
}

func (a *App) newNotifier() alerting.Notifier {
	var notifiers []alerting.Notifier
	for _, channel := range a.Config.Alerting.Channels {
		switch channel {
		case "discord":
			cfg := a.Config.Alerting.Discord
			notifiers = append(notifiers, alerting.NewDiscordNotifier(
				cfg.WebhookURL, cfg.Timeout, a.Config.Alerting.MaxRetries, a.Logger))
		case "telegram":
			cfg := a.Config.Alerting.Telegram
			notifiers = append(notifiers, alerting.NewTelegramNotifier(
				cfg.BotToken, cfg.ChatID, cfg.APIBase, 0, a.Logger))
		}
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(a.Logger, notifiers...)
}

func (a *App) newPipeline() (*enrich.Resolver, *detect.Chain, *dedup.Limiter) {
	store := history.New(a.Config.History.MaxPoints)
	resolver := enrich.New(store, enrich.Options{MinSamples: a.Config.History.MinSamples}, a.Logger)
	chain := detect.NewChain(detect.Config{
		MinDiscount:       a.Config.Detect.MinDiscount,
		ZScoreMin:         a.Config.Detect.ZScoreMin,
		FakeDropPct:       a.Config.Detect.FakeDropPct,
		LowVolatilityMax:  a.Config.Detect.LowVolatilityMax,
		ShortHistoryMax:   a.Config.Detect.ShortHistoryMax,
		SpikePct:          a.Config.Detect.SpikePct,
		LowConfidenceMode: detect.LowConfidenceMode(a.Config.Detect.LowConfidenceMode),
	})
	limiter := dedup.New(a.Config.Alerting.Cooldown, nil)
	return resolver, chain, limiter
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	src, err := a.newSource()
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	resolver, chain, limiter := a.newPipeline()
	notifier := a.newNotifier()

	var obsStore storage.ObservationStore
	var alertStore storage.AlertStore
	if store != nil {
		obsStore = store
		alertStore = store
	}

	svc := service.New(service.Options{
		Scheduler:        sched,
		Source:           src,
		Resolver:         resolver,
		Chain:            chain,
		Limiter:          limiter,
		ObservationStore: obsStore,
		AlertStore:       alertStore,
		Notifier:         notifier,
		AlertsEnabled:    a.Config.Alerting.Enabled,
		AdvisoryLockKey:  a.Config.Scheduler.AdvisoryLockKey,
	}, a.Logger)

	a.Logger.Info().
		Str("source", a.Config.Source.Kind).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting market watch")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("market watch stopped")
	return nil
}
