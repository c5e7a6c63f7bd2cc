// Package enrich fills the statistical gaps in raw observations from the
// history store, producing fully-populated observations for the detectors.
package enrich

import (
	"github.com/rs/zerolog"

	"github.com/ThurX360/WIZFUT/internal/history"
	"github.com/ThurX360/WIZFUT/internal/market"
)

// Options tune the resolver.
type Options struct {
	// MinSamples is the history depth below which locally-derived stats are
	// flagged low-confidence.
	MinSamples int
}

// Resolver turns PriceObservations into EnrichedObservations. It reads the
// entity's trailing stats strictly before recording the current price, so a
// sample never biases its own expected range.
type Resolver struct {
	store  *history.Store
	opts   Options
	logger zerolog.Logger
}

// New constructs a Resolver over the given history store.
func New(store *history.Store, opts Options, logger zerolog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve produces the enriched observation and records the current price
// into history exactly once. Upstream-provided avg/std take precedence over
// locally-derived values; gaps fall back to trailing stats, and with no
// history at all to the current price with std 0.
func (r *Resolver) Resolve(obs market.PriceObservation) (market.EnrichedObservation, error) {
	stats, hasStats := r.store.Stats(obs.EntityID)

	enriched := market.EnrichedObservation{PriceObservation: obs}
	enriched.SampleCount = stats.Count

	switch {
	case obs.Avg24h != nil && obs.Std24h != nil:
		// Trusted feeder: pass both through unchanged.
		enriched.Avg24h = *obs.Avg24h
		enriched.Std24h = *obs.Std24h
	case hasStats:
		enriched.Avg24h = stats.Mean
		enriched.Std24h = stats.StdDev
		if obs.Avg24h != nil {
			enriched.Avg24h = *obs.Avg24h
		}
		if obs.Std24h != nil {
			enriched.Std24h = *obs.Std24h
		}
	default:
		// Empty history: the only expected price is the current one.
		enriched.Avg24h = float64(obs.Price)
		enriched.Std24h = 0
		if obs.Avg24h != nil {
			enriched.Avg24h = *obs.Avg24h
		}
		if obs.Std24h != nil {
			enriched.Std24h = *obs.Std24h
		}
	}

	if enriched.Std24h > 0 {
		z := (float64(obs.Price) - enriched.Avg24h) / enriched.Std24h
		enriched.ZScore = &z
	}

	enriched.LowConfidence = enriched.SampleCount < r.opts.MinSamples

	if err := r.store.Record(obs.EntityID, obs.Price, obs.ObservedAt); err != nil {
		return market.EnrichedObservation{}, err
	}

	return enriched, nil
}
