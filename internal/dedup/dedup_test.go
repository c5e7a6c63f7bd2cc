package dedup

import (
	"testing"
	"time"

	"github.com/ThurX360/WIZFUT/internal/market"
)

type fakeClock struct {
	at time.Time
}

func (c *fakeClock) now() time.Time          { return c.at }
func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func alert(entityID string, kind market.AlertKind) market.Alert {
	return market.Alert{EntityID: entityID, Kind: kind, Price: 700, Avg24h: 1000}
}

func TestAllowSuppressesWithinCooldown(t *testing.T) {
	clock := &fakeClock{at: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)}
	limiter := New(15*time.Minute, clock.now)

	if !limiter.Allow(alert("e1", market.AlertUnderpriced)) {
		t.Fatal("first alert should pass")
	}

	clock.advance(5 * time.Minute)
	if limiter.Allow(alert("e1", market.AlertUnderpriced)) {
		t.Fatal("repeat within cooldown should be suppressed")
	}

	clock.advance(10 * time.Minute)
	if !limiter.Allow(alert("e1", market.AlertUnderpriced)) {
		t.Fatal("alert after cooldown elapsed should pass")
	}
}

func TestCooldownIsPerKind(t *testing.T) {
	clock := &fakeClock{at: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)}
	limiter := New(15*time.Minute, clock.now)

	if !limiter.Allow(alert("e1", market.AlertUnderpriced)) {
		t.Fatal("underpriced should pass")
	}
	if !limiter.Allow(alert("e1", market.AlertSpike)) {
		t.Fatal("spike for the same entity is a separate window")
	}
	if limiter.Allow(alert("e1", market.AlertSpike)) {
		t.Fatal("second spike should be suppressed")
	}
	if limiter.Tracked() != 2 {
		t.Fatalf("tracked = %d, want 2", limiter.Tracked())
	}
}

func TestCooldownIsPerEntity(t *testing.T) {
	clock := &fakeClock{at: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)}
	limiter := New(15*time.Minute, clock.now)

	if !limiter.Allow(alert("e1", market.AlertFakeBIN)) {
		t.Fatal("e1 should pass")
	}
	if !limiter.Allow(alert("e2", market.AlertFakeBIN)) {
		t.Fatal("e2 must not be throttled by e1's window")
	}
}

func TestSuppressedAlertDoesNotExtendWindow(t *testing.T) {
	clock := &fakeClock{at: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)}
	limiter := New(10*time.Minute, clock.now)

	limiter.Allow(alert("e1", market.AlertSpike))

	clock.advance(9 * time.Minute)
	if limiter.Allow(alert("e1", market.AlertSpike)) {
		t.Fatal("still inside window")
	}

	// If the suppressed attempt had reset the window this would fail.
	clock.advance(1 * time.Minute)
	if !limiter.Allow(alert("e1", market.AlertSpike)) {
		t.Fatal("window measured from last delivery, not last attempt")
	}
}

func TestNilClockDefaultsToWallClock(t *testing.T) {
	limiter := New(time.Minute, nil)
	if !limiter.Allow(alert("e1", market.AlertSpike)) {
		t.Fatal("first alert should pass")
	}
	if limiter.Allow(alert("e1", market.AlertSpike)) {
		t.Fatal("immediate repeat should be suppressed")
	}
}
