package app

import (
	"context"
	"errors"
	"time"

	"github.com/ThurX360/WIZFUT/internal/service"
	"github.com/ThurX360/WIZFUT/internal/source"
	"github.com/ThurX360/WIZFUT/internal/storage"
)

// ReplayOptions configure the replay job.
type ReplayOptions struct {
	Path   string
	DryRun bool
}

// Replay pushes one CSV snapshot through the full pipeline in a single
// pass. With --dry-run nothing is persisted or notified; the detectors
// still run, which makes this the quickest way to sanity-check thresholds
// against a captured export.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	if opts.Path == "" {
		return errors.New("--file must be provided")
	}

	var obsStore storage.ObservationStore
	var alertStore storage.AlertStore
	notifier := a.newNotifier()
	alertsOn := a.Config.Alerting.Enabled

	if opts.DryRun {
		a.Logger.Warn().Msg("replay dry-run: nothing will be persisted or notified")
		notifier = nil
		alertsOn = false
	} else if a.Config.Database.DSN != "" {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if closeStore != nil {
			defer closeStore()
		}
		obsStore = store
		alertStore = store
	}

	src := source.NewCSV(source.CSVOptions{
		Path:    opts.Path,
		Columns: a.Config.Source.CSV.Columns,
	}, a.Logger)

	resolver, chain, limiter := a.newPipeline()

	svc := service.New(service.Options{
		Source:           src,
		Resolver:         resolver,
		Chain:            chain,
		Limiter:          limiter,
		ObservationStore: obsStore,
		AlertStore:       alertStore,
		Notifier:         notifier,
		AlertsEnabled:    alertsOn,
	}, a.Logger)

	result, err := svc.ProcessCycle(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("fetched", result.Fetched).
		Int("skipped", result.Skipped).
		Int("alerts", result.Alerts).
		Int("delivered", result.Delivered).
		Msg("replay complete")
	return nil
}
