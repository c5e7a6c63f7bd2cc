package storage

import (
	"time"

	"github.com/google/uuid"
)

// ObservationRecord is one persisted enriched observation.
type ObservationRecord struct {
	ID          int64
	EntityID    string
	Name        string
	Rating      int
	League      string
	Position    string
	Price       int64
	Avg24h      float64
	Std24h      float64
	ZScore      *float64
	SampleCount int
	ObservedAt  time.Time
	CreatedAt   time.Time
}

// AlertRecord captures an emitted alert for auditing.
type AlertRecord struct {
	ID            int64
	AlertUID      uuid.UUID
	EntityID      string
	Name          string
	Rating        int
	Kind          string
	Price         int64
	Avg24h        float64
	ZScore        *float64
	DeviationPct  float64
	SampleCount   int
	LowConfidence bool
	TriggeredAt   time.Time
	CreatedAt     time.Time
}
