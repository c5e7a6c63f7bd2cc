package app

import (
	"context"
	"errors"
	"time"

	"github.com/ThurX360/WIZFUT/internal/market"
	"github.com/ThurX360/WIZFUT/internal/service"
	"github.com/ThurX360/WIZFUT/internal/source"
)

// SimulateAlert pushes one synthetic observation through the pipeline to
// verify notifier wiring end to end. avg and std stand in for upstream
// statistics, so the detectors see exactly the given deviation.
func (a *App) SimulateAlert(ctx context.Context, price int64, avg, std float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alerting channels configured")
	}

	obs := market.PriceObservation{
		EntityID:   "simulated",
		Name:       "Simulated Card",
		Rating:     88,
		League:     "Test League",
		Position:   "ST",
		Price:      price,
		Avg24h:     &avg,
		Std24h:     &std,
		ObservedAt: time.Now().UTC(),
	}

	resolver, chain, limiter := a.newPipeline()

	svc := service.New(service.Options{
		Source:        staticSource{observations: []market.PriceObservation{obs}},
		Resolver:      resolver,
		Chain:         chain,
		Limiter:       limiter,
		Notifier:      notifier,
		AlertsEnabled: true,
	}, a.Logger)

	result, err := svc.ProcessCycle(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if result.Alerts == 0 {
		a.Logger.Warn().Msg("no detector fired for the simulated observation; check thresholds")
	}
	return nil
}

type staticSource struct {
	observations []market.PriceObservation
}

func (s staticSource) Fetch(ctx context.Context) ([]market.PriceObservation, error) {
	return s.observations, nil
}

var _ source.Source = staticSource{}
