package enrich

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ThurX360/WIZFUT/internal/history"
	"github.com/ThurX360/WIZFUT/internal/market"
)

func newResolver(t *testing.T, minSamples int) (*Resolver, *history.Store) {
	t.Helper()
	store := history.New(50)
	return New(store, Options{MinSamples: minSamples}, zerolog.Nop()), store
}

func obs(entityID string, price int64) market.PriceObservation {
	return market.PriceObservation{
		EntityID:   entityID,
		Name:       "Test Player",
		Price:      price,
		ObservedAt: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
	}
}

func f64(v float64) *float64 { return &v }

func TestResolveUpstreamStatsPassThrough(t *testing.T) {
	r, _ := newResolver(t, 5)

	o := obs("e1", 900)
	o.Avg24h = f64(1000)
	o.Std24h = f64(100)

	enriched, err := r.Resolve(o)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if enriched.Avg24h != 1000 || enriched.Std24h != 100 {
		t.Fatalf("upstream stats not passed through: avg=%f std=%f", enriched.Avg24h, enriched.Std24h)
	}
	if enriched.ZScore == nil || *enriched.ZScore != -1 {
		t.Fatalf("zscore = %v, want -1", enriched.ZScore)
	}
}

func TestResolveEmptyHistoryFallback(t *testing.T) {
	r, _ := newResolver(t, 5)

	enriched, err := r.Resolve(obs("e1", 1200))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if enriched.Avg24h != 1200 {
		t.Fatalf("avg = %f, want current price 1200", enriched.Avg24h)
	}
	if enriched.Std24h != 0 {
		t.Fatalf("std = %f, want 0", enriched.Std24h)
	}
	if enriched.ZScore != nil {
		t.Fatalf("zscore = %v, want nil with std 0", *enriched.ZScore)
	}
	if enriched.SampleCount != 0 {
		t.Fatalf("sample count = %d, want 0", enriched.SampleCount)
	}
}

func TestResolveReadsStatsBeforeRecording(t *testing.T) {
	r, store := newResolver(t, 1)

	for _, price := range []int64{1000, 1000, 1000} {
		if _, err := r.Resolve(obs("e1", price)); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}

	// The outlier must be judged against the prior window only.
	enriched, err := r.Resolve(obs("e1", 400))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if enriched.Avg24h != 1000 {
		t.Fatalf("avg = %f, want 1000 (current sample must not bias its own stats)", enriched.Avg24h)
	}
	if enriched.SampleCount != 3 {
		t.Fatalf("sample count = %d, want 3", enriched.SampleCount)
	}
	if store.Len("e1") != 4 {
		t.Fatalf("history len = %d, want 4 (recorded after resolving)", store.Len("e1"))
	}
}

func TestResolvePartialUpstreamOverride(t *testing.T) {
	r, _ := newResolver(t, 1)

	for _, price := range []int64{800, 1200} {
		if _, err := r.Resolve(obs("e1", price)); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}

	o := obs("e1", 1000)
	o.Avg24h = f64(950) // upstream avg, no upstream std
	enriched, err := r.Resolve(o)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if enriched.Avg24h != 950 {
		t.Fatalf("avg = %f, want upstream 950", enriched.Avg24h)
	}
	if enriched.Std24h != 200 {
		t.Fatalf("std = %f, want locally-derived 200", enriched.Std24h)
	}
}

func TestResolveLowConfidenceFlag(t *testing.T) {
	r, _ := newResolver(t, 3)

	enriched, _ := r.Resolve(obs("e1", 1000))
	if !enriched.LowConfidence {
		t.Fatal("0 samples with min 3 should be low confidence")
	}
	r.Resolve(obs("e1", 1000))
	r.Resolve(obs("e1", 1000))

	enriched, _ = r.Resolve(obs("e1", 1000))
	if enriched.LowConfidence {
		t.Fatalf("3 samples with min 3 should not be low confidence (count=%d)", enriched.SampleCount)
	}
}

func TestResolveRejectsInvalidObservation(t *testing.T) {
	r, _ := newResolver(t, 1)

	if _, err := r.Resolve(obs("e1", 0)); err == nil {
		t.Fatal("zero price should propagate the history rejection")
	}
}
