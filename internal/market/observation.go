package market

import (
	"time"

	"github.com/google/uuid"
)

// PriceObservation is a normalized marketplace listing sample. Sources map
// their raw column names onto this type; nothing downstream sees feeder
// field names. Avg24h/Std24h are nil when the feeder did not supply them;
// absent is distinct from zero.
type PriceObservation struct {
	EntityID   string
	Name       string
	Rating     int
	League     string
	Position   string
	Price      int64
	Avg24h     *float64
	Std24h     *float64
	ObservedAt time.Time
}

// EnrichedObservation is a PriceObservation after metrics resolution:
// Avg24h/Std24h are always populated, ZScore only when Std24h > 0.
type EnrichedObservation struct {
	PriceObservation

	Avg24h        float64
	Std24h        float64
	ZScore        *float64
	SampleCount   int
	LowConfidence bool
}

// AlertKind labels which detector fired.
type AlertKind string

const (
	AlertUnderpriced AlertKind = "underpriced"
	AlertFakeBIN     AlertKind = "fake_bin"
	AlertSpike       AlertKind = "spike"
)

// Alert is one detector verdict for one observation. It is consumed once by
// the deduplicator and then either dropped or handed to the notifiers.
type Alert struct {
	ID            uuid.UUID
	EntityID      string
	Name          string
	Rating        int
	Kind          AlertKind
	Price         int64
	Avg24h        float64
	ZScore        *float64
	DeviationPct  float64
	SampleCount   int
	LowConfidence bool
	TriggeredAt   time.Time
}
