// Package history keeps a bounded in-memory price history per entity and
// derives trailing statistics from it. The store is the single owner of all
// buffers; it is created empty at process start and never persisted.
package history

import (
	"fmt"
	"math"
	"time"
)

// Stats aggregates the current buffer contents of one entity.
type Stats struct {
	Mean   float64
	StdDev float64
	Count  int
}

type point struct {
	price      float64
	observedAt time.Time
}

// series is a fixed-capacity FIFO ring. head points at the oldest entry
// once the buffer has wrapped.
type series struct {
	points []point
	head   int
}

func (s *series) push(p point, capacity int) {
	if len(s.points) < capacity {
		s.points = append(s.points, p)
		return
	}
	// Full: overwrite the oldest slot and advance head.
	s.points[s.head] = p
	s.head = (s.head + 1) % capacity
}

// Store holds one ring buffer per entity. Not safe for concurrent use; the
// poll loop is the single writer.
type Store struct {
	maxPoints int
	series    map[string]*series
}

// New constructs an empty store. maxPoints must be positive.
func New(maxPoints int) *Store {
	if maxPoints <= 0 {
		panic("history: maxPoints must be positive")
	}
	return &Store{
		maxPoints: maxPoints,
		series:    make(map[string]*series),
	}
}

// Record appends a price sample for entityID, evicting the oldest sample
// once the buffer is at capacity. Non-positive prices are a data error.
func (s *Store) Record(entityID string, price int64, observedAt time.Time) error {
	if entityID == "" {
		return fmt.Errorf("history: empty entity id")
	}
	if price <= 0 {
		return fmt.Errorf("history: price must be positive, got %d", price)
	}

	ser, ok := s.series[entityID]
	if !ok {
		ser = &series{points: make([]point, 0, s.maxPoints)}
		s.series[entityID] = ser
	}
	ser.push(point{price: float64(price), observedAt: observedAt}, s.maxPoints)
	return nil
}

// Stats returns trailing mean, population standard deviation, and sample
// count over the entity's current buffer. ok is false when no samples exist.
//
// A two-pass computation over at most maxPoints floats; exact and cheap at
// this buffer size, and unlike a Welford accumulator it stays correct under
// FIFO eviction.
func (s *Store) Stats(entityID string) (stats Stats, ok bool) {
	ser, found := s.series[entityID]
	if !found || len(ser.points) == 0 {
		return Stats{}, false
	}

	var sum float64
	for _, p := range ser.points {
		sum += p.price
	}
	mean := sum / float64(len(ser.points))

	var sq float64
	for _, p := range ser.points {
		d := p.price - mean
		sq += d * d
	}
	variance := sq / float64(len(ser.points))

	return Stats{
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		Count:  len(ser.points),
	}, true
}

// Len reports the number of samples currently held for entityID.
func (s *Store) Len(entityID string) int {
	ser, ok := s.series[entityID]
	if !ok {
		return 0
	}
	return len(ser.points)
}

// Entities reports how many entities have at least one sample.
func (s *Store) Entities() int {
	return len(s.series)
}

// Prices returns the buffered prices for entityID in insertion order,
// oldest first. Used by tests and the replay summary.
func (s *Store) Prices(entityID string) []int64 {
	ser, ok := s.series[entityID]
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(ser.points))
	for i := 0; i < len(ser.points); i++ {
		idx := i
		if len(ser.points) == s.maxPoints {
			idx = (ser.head + i) % s.maxPoints
		}
		out = append(out, int64(ser.points[idx].price))
	}
	return out
}
