// Package detect holds the anomaly rule evaluators. Every detector is a
// pure function from an enriched observation to at most one alert; the
// three rules are independent and may all fire on the same observation.
package detect

import (
	"time"

	"github.com/google/uuid"

	"github.com/ThurX360/WIZFUT/internal/market"
)

// LowConfidenceMode selects what the chain does with observations whose
// sample count is below the configured minimum.
type LowConfidenceMode string

const (
	// LowConfidenceAnnotate keeps the alerts but marks them low-confidence.
	LowConfidenceAnnotate LowConfidenceMode = "annotate"
	// LowConfidenceSuppress drops all verdicts for low-confidence input.
	LowConfidenceSuppress LowConfidenceMode = "suppress"
)

// Config carries every detection threshold. All values are injected; the
// detectors hold no literals.
type Config struct {
	// MinDiscount is the minimum fractional discount under the trailing
	// average for the underpriced rule (0.15 = 15%).
	MinDiscount float64
	// ZScoreMin is the minimum deviation magnitude, in standard deviations,
	// for the underpriced rule.
	ZScoreMin float64
	// FakeDropPct is the minimum fractional drop for the fake-BIN rule.
	FakeDropPct float64
	// LowVolatilityMax: a std dev at or below this counts as "no genuine
	// volatility" for the fake-BIN rule.
	LowVolatilityMax float64
	// ShortHistoryMax: a sample count below this counts as "too little
	// history to confirm a real move" for the fake-BIN rule.
	ShortHistoryMax int
	// SpikePct is the minimum fractional rise for the spike rule.
	SpikePct float64

	LowConfidenceMode LowConfidenceMode
}

// Detector evaluates one rule against one observation.
type Detector func(obs market.EnrichedObservation, cfg Config) *market.Alert

// Underpriced fires on listings priced well under the trailing average AND
// far enough below it in z-score terms. Without a defined z-score (std 0)
// the rule never fires: a flat history cannot rank the deviation.
func Underpriced(obs market.EnrichedObservation, cfg Config) *market.Alert {
	if obs.Avg24h <= 0 {
		return nil
	}
	if float64(obs.Price) > obs.Avg24h*(1-cfg.MinDiscount) {
		return nil
	}
	if obs.ZScore == nil || *obs.ZScore > -cfg.ZScoreMin {
		return nil
	}
	discount := 1 - float64(obs.Price)/obs.Avg24h
	return newAlert(obs, market.AlertUnderpriced, discount)
}

// FakeBIN fires on sharp drops that are unconfirmed by genuine volatility
// or by enough history to trust them as a real market move.
func FakeBIN(obs market.EnrichedObservation, cfg Config) *market.Alert {
	if obs.Avg24h <= 0 {
		return nil
	}
	drop := 1 - float64(obs.Price)/obs.Avg24h
	if drop <= cfg.FakeDropPct {
		return nil
	}
	if obs.Std24h > cfg.LowVolatilityMax && obs.SampleCount >= cfg.ShortHistoryMax {
		return nil
	}
	return newAlert(obs, market.AlertFakeBIN, drop)
}

// Spike fires on prices at or above the trailing average by SpikePct.
func Spike(obs market.EnrichedObservation, cfg Config) *market.Alert {
	if obs.Avg24h <= 0 {
		return nil
	}
	if float64(obs.Price) < obs.Avg24h*(1+cfg.SpikePct) {
		return nil
	}
	rise := float64(obs.Price)/obs.Avg24h - 1
	return newAlert(obs, market.AlertSpike, rise)
}

func newAlert(obs market.EnrichedObservation, kind market.AlertKind, deviation float64) *market.Alert {
	return &market.Alert{
		ID:            uuid.New(),
		EntityID:      obs.EntityID,
		Name:          obs.Name,
		Rating:        obs.Rating,
		Kind:          kind,
		Price:         obs.Price,
		Avg24h:        obs.Avg24h,
		ZScore:        obs.ZScore,
		DeviationPct:  deviation,
		SampleCount:   obs.SampleCount,
		LowConfidence: obs.LowConfidence,
		TriggeredAt:   obs.ObservedAt,
	}
}

// Chain runs the detectors in a fixed order.
type Chain struct {
	cfg       Config
	detectors []Detector
}

// NewChain builds the standard underpriced → fake-BIN → spike chain.
func NewChain(cfg Config) *Chain {
	return &Chain{
		cfg:       cfg,
		detectors: []Detector{Underpriced, FakeBIN, Spike},
	}
}

// Evaluate applies every detector and collects the alerts that fired. No
// mutual exclusion: overlapping verdicts are tolerated, not deduplicated
// here. Low-confidence observations are suppressed or annotated according
// to the configured mode.
func (c *Chain) Evaluate(obs market.EnrichedObservation) []market.Alert {
	if obs.LowConfidence && c.cfg.LowConfidenceMode == LowConfidenceSuppress {
		return nil
	}

	var alerts []market.Alert
	for _, det := range c.detectors {
		if alert := det(obs, c.cfg); alert != nil {
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}

// Stamp fills missing trigger timestamps; used when an observation carries
// no usable timestamp of its own.
func Stamp(alerts []market.Alert, at time.Time) {
	for i := range alerts {
		if alerts[i].TriggeredAt.IsZero() {
			alerts[i].TriggeredAt = at
		}
	}
}
