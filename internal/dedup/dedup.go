// Package dedup rate-limits repeat alerts. One cooldown window per
// (entity, kind): an entity simultaneously underpriced and spiking is
// limited independently for each kind.
package dedup

import (
	"time"

	"github.com/ThurX360/WIZFUT/internal/market"
)

type key struct {
	entityID string
	kind     market.AlertKind
}

// Limiter suppresses alerts for a (entity, kind) pair inside the cooldown
// window. State lives for the process lifetime only; re-alerting after a
// restart is acceptable. Not safe for concurrent use; the poll loop is the
// single caller.
type Limiter struct {
	cooldown time.Duration
	now      func() time.Time
	lastSent map[key]time.Time
}

// New constructs a Limiter. now is injectable so tests can simulate time
// passing; nil means wall clock.
func New(cooldown time.Duration, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		cooldown: cooldown,
		now:      now,
		lastSent: make(map[key]time.Time),
	}
}

// Allow reports whether the alert may be delivered, and if so records the
// delivery time. Returns true iff no alert of the same kind for the same
// entity was allowed within the cooldown.
func (l *Limiter) Allow(alert market.Alert) bool {
	k := key{entityID: alert.EntityID, kind: alert.Kind}
	now := l.now()

	if last, ok := l.lastSent[k]; ok && now.Sub(last) < l.cooldown {
		return false
	}
	l.lastSent[k] = now
	return true
}

// Tracked reports how many (entity, kind) pairs currently hold state.
func (l *Limiter) Tracked() int {
	return len(l.lastSent)
}
