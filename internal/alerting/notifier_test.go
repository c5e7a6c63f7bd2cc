package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ThurX360/WIZFUT/internal/market"
)

func sampleAlert(kind market.AlertKind) market.Alert {
	z := -2.1
	return market.Alert{
		EntityID:     "158023",
		Name:         "Lionel Messi",
		Rating:       91,
		Kind:         kind,
		Price:        700000,
		Avg24h:       1000000,
		ZScore:       &z,
		DeviationPct: 0.30,
		SampleCount:  24,
		TriggeredAt:  time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
	}
}

func TestFormatCoins(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.000"},
		{389500, "389.500"},
		{1250000, "1.250.000"},
		{-45000, "-45.000"},
	}
	for _, tc := range cases {
		if got := FormatCoins(tc.in); got != tc.want {
			t.Errorf("FormatCoins(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderMessageUnderpriced(t *testing.T) {
	msg := RenderMessage(sampleAlert(market.AlertUnderpriced))
	for _, want := range []string{"UNDERPRICED", "Lionel Messi", "700.000", "1.000.000", "30%", "z≈-2.10"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestRenderMessageFakeBINWithoutZScore(t *testing.T) {
	alert := sampleAlert(market.AlertFakeBIN)
	alert.ZScore = nil
	msg := RenderMessage(alert)
	if !strings.Contains(msg, "FAKE BIN?") || !strings.Contains(msg, "drop ~30%") {
		t.Errorf("unexpected message:\n%s", msg)
	}
	if strings.Contains(msg, "z≈") {
		t.Errorf("message should omit z without a z-score:\n%s", msg)
	}
}

func TestRenderMessageLowConfidenceSuffix(t *testing.T) {
	alert := sampleAlert(market.AlertSpike)
	alert.LowConfidence = true
	alert.SampleCount = 3
	msg := RenderMessage(alert)
	if !strings.Contains(msg, "low confidence (3 samples)") {
		t.Errorf("missing low-confidence suffix:\n%s", msg)
	}
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(ctx context.Context, alert market.Alert) error {
	s.calls++
	return s.err
}

func TestFanoutDeliversToEveryChannelDespiteFailures(t *testing.T) {
	good := &stubNotifier{}
	bad := &stubNotifier{err: errors.New("sink down")}
	also := &stubNotifier{}

	fanout := NewFanout(zerolog.Nop(), good, bad, also)
	err := fanout.Notify(context.Background(), sampleAlert(market.AlertSpike))
	if err == nil {
		t.Fatal("failed channel should surface an error")
	}
	if good.calls != 1 || bad.calls != 1 || also.calls != 1 {
		t.Fatalf("calls = %d/%d/%d, want 1 each", good.calls, bad.calls, also.calls)
	}
}

func TestFanoutEmptyIsNoop(t *testing.T) {
	fanout := NewFanout(zerolog.Nop())
	if err := fanout.Notify(context.Background(), sampleAlert(market.AlertSpike)); err != nil {
		t.Fatalf("empty fanout errored: %v", err)
	}
	if fanout.Len() != 0 {
		t.Fatalf("len = %d, want 0", fanout.Len())
	}
}
