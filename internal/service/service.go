// Package service wires the poll loop: fetch a batch, enrich and evaluate
// every observation, rate-limit the verdicts, persist and notify. One cycle
// runs sequentially, entity by entity; the service goroutine is the only
// writer over history and dedup state.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ThurX360/WIZFUT/internal/alerting"
	"github.com/ThurX360/WIZFUT/internal/dedup"
	"github.com/ThurX360/WIZFUT/internal/detect"
	"github.com/ThurX360/WIZFUT/internal/enrich"
	"github.com/ThurX360/WIZFUT/internal/market"
	"github.com/ThurX360/WIZFUT/internal/scheduler"
	"github.com/ThurX360/WIZFUT/internal/source"
	"github.com/ThurX360/WIZFUT/internal/storage"
)

// CycleResult summarises one poll cycle.
type CycleResult struct {
	Fetched    int
	Skipped    int
	Alerts     int
	Suppressed int
	Delivered  int
}

// Service orchestrates fetching, detection, deduplication, persistence,
// and alert delivery.
type Service struct {
	scheduler *scheduler.Scheduler
	source    source.Source
	resolver  *enrich.Resolver
	chain     *detect.Chain
	limiter   *dedup.Limiter
	obsStore  storage.ObservationStore
	alStore   storage.AlertStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	alertsOn bool
	locker   storage.AdvisoryLocker
	lockKey  int64
}

// Options bundle the service collaborators. Stores and notifier may be nil;
// the corresponding step is skipped.
type Options struct {
	Scheduler        *scheduler.Scheduler
	Source           source.Source
	Resolver         *enrich.Resolver
	Chain            *detect.Chain
	Limiter          *dedup.Limiter
	ObservationStore storage.ObservationStore
	AlertStore       storage.AlertStore
	Notifier         alerting.Notifier
	AlertsEnabled    bool
	AdvisoryLockKey  int64
}

// New constructs the monitoring service.
func New(opts Options, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := opts.ObservationStore.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: opts.Scheduler,
		source:    opts.Source,
		resolver:  opts.Resolver,
		chain:     opts.Chain,
		limiter:   opts.Limiter,
		obsStore:  opts.ObservationStore,
		alStore:   opts.AlertStore,
		notifier:  opts.Notifier,
		logger:    logger.With().Str("component", "service").Logger(),
		alertsOn:  opts.AlertsEnabled,
		locker:    locker,
		lockKey:   opts.AdvisoryLockKey,
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, tick time.Time) error {
		_, err := s.ProcessCycle(ctx, tick)
		return err
	})
}

// ProcessCycle executes one fetch-detect-notify cycle.
func (s *Service) ProcessCycle(ctx context.Context, tick time.Time) (CycleResult, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return CycleResult{}, err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip cycle because advisory lock held elsewhere")
		return CycleResult{}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	observations, err := s.source.Fetch(ctx)
	if err != nil {
		// Transient fetch failure: this cycle is lost, the next tick retries.
		return CycleResult{}, fmt.Errorf("fetch batch: %w", err)
	}
	if len(observations) == 0 {
		s.logger.Debug().Time("tick", tick).Msg("empty batch, nothing to evaluate")
		return CycleResult{}, nil
	}

	var result CycleResult
	result.Fetched = len(observations)

	for _, obs := range observations {
		if err := validate(obs); err != nil {
			result.Skipped++
			s.logger.Warn().Err(err).Str("entity", obs.EntityID).Msg("rejecting malformed observation")
			continue
		}

		enriched, err := s.resolver.Resolve(obs)
		if err != nil {
			result.Skipped++
			s.logger.Warn().Err(err).Str("entity", obs.EntityID).Msg("observation not recorded")
			continue
		}

		s.persistObservation(ctx, enriched)

		alerts := s.chain.Evaluate(enriched)
		detect.Stamp(alerts, tick)
		result.Alerts += len(alerts)

		for _, alert := range alerts {
			if !s.limiter.Allow(alert) {
				result.Suppressed++
				s.logger.Debug().
					Str("entity", alert.EntityID).
					Str("kind", string(alert.Kind)).
					Msg("alert suppressed by cooldown")
				continue
			}
			s.dispatch(ctx, alert)
			result.Delivered++
		}
	}

	s.logger.Info().
		Time("tick", tick).
		Int("fetched", result.Fetched).
		Int("skipped", result.Skipped).
		Int("alerts", result.Alerts).
		Int("suppressed", result.Suppressed).
		Int("delivered", result.Delivered).
		Msg("cycle complete")

	return result, nil
}

// validate is the malformed-input gate: bad records are rejected one at a
// time, never the whole batch.
func validate(obs market.PriceObservation) error {
	if obs.EntityID == "" {
		return fmt.Errorf("missing entity id")
	}
	if obs.Price <= 0 {
		return fmt.Errorf("price must be positive, got %d", obs.Price)
	}
	if obs.Std24h != nil && *obs.Std24h < 0 {
		return fmt.Errorf("std_24h cannot be negative")
	}
	return nil
}

func (s *Service) persistObservation(ctx context.Context, obs market.EnrichedObservation) {
	if s.obsStore == nil {
		return
	}
	record := storage.ObservationRecord{
		EntityID:    obs.EntityID,
		Name:        obs.Name,
		Rating:      obs.Rating,
		League:      obs.League,
		Position:    obs.Position,
		Price:       obs.Price,
		Avg24h:      obs.Avg24h,
		Std24h:      obs.Std24h,
		ZScore:      obs.ZScore,
		SampleCount: obs.SampleCount,
		ObservedAt:  obs.ObservedAt,
	}
	if err := s.obsStore.InsertObservation(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("entity", obs.EntityID).Msg("failed to persist observation")
	}
}

// dispatch audits and delivers one allowed alert. Neither persistence nor
// notification failures reach the detection pipeline.
func (s *Service) dispatch(ctx context.Context, alert market.Alert) {
	if s.alStore != nil {
		record := storage.AlertRecord{
			AlertUID:      alert.ID,
			EntityID:      alert.EntityID,
			Name:          alert.Name,
			Rating:        alert.Rating,
			Kind:          string(alert.Kind),
			Price:         alert.Price,
			Avg24h:        alert.Avg24h,
			ZScore:        alert.ZScore,
			DeviationPct:  alert.DeviationPct,
			SampleCount:   alert.SampleCount,
			LowConfidence: alert.LowConfidence,
			TriggeredAt:   alert.TriggeredAt,
		}
		if _, err := s.alStore.InsertAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Str("entity", alert.EntityID).Msg("failed to persist alert record")
		}
	}

	if !s.alertsOn || s.notifier == nil {
		s.logger.Info().
			Str("entity", alert.EntityID).
			Str("kind", string(alert.Kind)).
			Int64("price", alert.Price).
			Msg("alert (notification disabled)")
		return
	}

	if err := s.notifier.Notify(ctx, alert); err != nil {
		s.logger.Error().Err(err).
			Str("entity", alert.EntityID).
			Str("kind", string(alert.Kind)).
			Msg("failed to dispatch alert")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
