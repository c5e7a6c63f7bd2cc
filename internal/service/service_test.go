package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ThurX360/WIZFUT/internal/alerting"
	"github.com/ThurX360/WIZFUT/internal/dedup"
	"github.com/ThurX360/WIZFUT/internal/detect"
	"github.com/ThurX360/WIZFUT/internal/enrich"
	"github.com/ThurX360/WIZFUT/internal/history"
	"github.com/ThurX360/WIZFUT/internal/market"
)

type stubSource struct {
	batches [][]market.PriceObservation
	err     error
	calls   int
}

func (s *stubSource) Fetch(ctx context.Context) ([]market.PriceObservation, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.calls >= len(s.batches) {
		return nil, nil
	}
	batch := s.batches[s.calls]
	s.calls++
	return batch, nil
}

type recordingNotifier struct {
	sent []market.Alert
}

func (r *recordingNotifier) Notify(ctx context.Context, alert market.Alert) error {
	r.sent = append(r.sent, alert)
	return nil
}

var _ alerting.Notifier = (*recordingNotifier)(nil)

type testClock struct {
	at time.Time
}

func (c *testClock) now() time.Time          { return c.at }
func (c *testClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func detectConfig() detect.Config {
	return detect.Config{
		MinDiscount:       0.15,
		ZScoreMin:         1.5,
		FakeDropPct:       0.40,
		LowVolatilityMax:  250,
		ShortHistoryMax:   8,
		SpikePct:          0.50,
		LowConfidenceMode: detect.LowConfidenceAnnotate,
	}
}

func newTestService(src *stubSource, notifier *recordingNotifier, clock *testClock) *Service {
	logger := zerolog.Nop()
	store := history.New(100)
	return New(Options{
		Source:        src,
		Resolver:      enrich.New(store, enrich.Options{MinSamples: 1}, logger),
		Chain:         detect.NewChain(detectConfig()),
		Limiter:       dedup.New(15*time.Minute, clock.now),
		Notifier:      notifier,
		AlertsEnabled: true,
	}, logger)
}

func priced(entityID string, price int64) market.PriceObservation {
	return market.PriceObservation{
		EntityID:   entityID,
		Name:       "Test Player",
		Rating:     88,
		Price:      price,
		ObservedAt: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
	}
}

func withStats(obs market.PriceObservation, avg, std float64) market.PriceObservation {
	obs.Avg24h = &avg
	obs.Std24h = &std
	return obs
}

func TestProcessCycleSpikeThenCooldown(t *testing.T) {
	clock := &testClock{at: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)}
	src := &stubSource{batches: [][]market.PriceObservation{
		{withStats(priced("card-1", 1600), 1000, 150)},
		{withStats(priced("card-1", 1650), 1000, 150)},
	}}
	notifier := &recordingNotifier{}
	svc := newTestService(src, notifier, clock)

	first, err := svc.ProcessCycle(context.Background(), clock.now())
	if err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if first.Alerts != 1 || first.Delivered != 1 {
		t.Fatalf("first cycle = %+v, want one spike delivered", first)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Kind != market.AlertSpike {
		t.Fatalf("sent = %+v, want one spike", notifier.sent)
	}

	// Still spiking five minutes later: detected again, delivery suppressed.
	clock.advance(5 * time.Minute)
	second, err := svc.ProcessCycle(context.Background(), clock.now())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if second.Alerts != 1 || second.Suppressed != 1 || second.Delivered != 0 {
		t.Fatalf("second cycle = %+v, want spike suppressed by cooldown", second)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("sent = %d alerts, want still 1", len(notifier.sent))
	}
}

func TestProcessCycleUnderpricedDelivery(t *testing.T) {
	clock := &testClock{at: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)}
	src := &stubSource{batches: [][]market.PriceObservation{
		{withStats(priced("card-1", 600), 1000, 200)},
	}}
	notifier := &recordingNotifier{}
	svc := newTestService(src, notifier, clock)

	result, err := svc.ProcessCycle(context.Background(), clock.now())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if result.Delivered != 1 {
		t.Fatalf("result = %+v, want one delivery", result)
	}
	alert := notifier.sent[0]
	if alert.Kind != market.AlertUnderpriced {
		t.Fatalf("kind = %s, want underpriced", alert.Kind)
	}
	if alert.ZScore == nil || *alert.ZScore != -2 {
		t.Fatalf("zscore = %v, want -2", alert.ZScore)
	}
}

func TestProcessCycleRejectsMalformedRowsIndividually(t *testing.T) {
	clock := &testClock{at: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)}
	negStd := -5.0
	src := &stubSource{batches: [][]market.PriceObservation{{
		priced("", 1000),
		priced("card-bad-price", 0),
		func() market.PriceObservation {
			o := priced("card-neg-std", 1000)
			o.Std24h = &negStd
			return o
		}(),
		withStats(priced("card-good", 1000), 1000, 100),
	}}}
	notifier := &recordingNotifier{}
	svc := newTestService(src, notifier, clock)

	result, err := svc.ProcessCycle(context.Background(), clock.now())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if result.Fetched != 4 || result.Skipped != 3 {
		t.Fatalf("result = %+v, want 3 of 4 rejected", result)
	}
}

func TestProcessCycleFetchFailureLosesCycle(t *testing.T) {
	clock := &testClock{at: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)}
	src := &stubSource{err: errors.New("feed down")}
	svc := newTestService(src, &recordingNotifier{}, clock)

	if _, err := svc.ProcessCycle(context.Background(), clock.now()); err == nil {
		t.Fatal("fetch failure should surface as a cycle error")
	}
}

func TestProcessCycleEmptyBatchIsNotAnError(t *testing.T) {
	clock := &testClock{at: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)}
	src := &stubSource{}
	svc := newTestService(src, &recordingNotifier{}, clock)

	result, err := svc.ProcessCycle(context.Background(), clock.now())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if result.Fetched != 0 {
		t.Fatalf("result = %+v, want empty", result)
	}
}

func TestProcessCycleBuildsLocalStatsAcrossCycles(t *testing.T) {
	// No upstream stats at all: the trailing window accumulates over cycles
	// until a drop stands out.
	clock := &testClock{at: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)}
	batches := [][]market.PriceObservation{
		{priced("card-1", 980)},
		{priced("card-1", 1000)},
		{priced("card-1", 1020)},
		{priced("card-1", 1000)},
		{priced("card-1", 550)},
	}
	src := &stubSource{batches: batches}
	notifier := &recordingNotifier{}
	svc := newTestService(src, notifier, clock)

	var last CycleResult
	for i := range batches {
		var err error
		last, err = svc.ProcessCycle(context.Background(), clock.now())
		if err != nil {
			t.Fatalf("cycle %d: %v", i+1, err)
		}
		clock.advance(time.Minute)
	}

	if last.Alerts == 0 || last.Delivered == 0 {
		t.Fatalf("final cycle = %+v, want the drop detected from local history", last)
	}
	got := notifier.sent[len(notifier.sent)-1]
	if got.EntityID != "card-1" {
		t.Fatalf("alert entity = %s", got.EntityID)
	}
	if got.Kind != market.AlertUnderpriced && got.Kind != market.AlertFakeBIN {
		t.Fatalf("kind = %s, want a downside verdict", got.Kind)
	}
}

func TestProcessCycleNotifierDisabled(t *testing.T) {
	clock := &testClock{at: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)}
	src := &stubSource{batches: [][]market.PriceObservation{
		{withStats(priced("card-1", 1600), 1000, 150)},
	}}
	logger := zerolog.Nop()
	store := history.New(100)
	svc := New(Options{
		Source:        src,
		Resolver:      enrich.New(store, enrich.Options{MinSamples: 1}, logger),
		Chain:         detect.NewChain(detectConfig()),
		Limiter:       dedup.New(15*time.Minute, clock.now),
		AlertsEnabled: false,
	}, logger)

	result, err := svc.ProcessCycle(context.Background(), clock.now())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	// The alert is still counted as delivered work; only the outbound push
	// is skipped.
	if result.Alerts != 1 || result.Delivered != 1 {
		t.Fatalf("result = %+v, want alert processed without notifier", result)
	}
}
