package history

import (
	"math"
	"testing"
	"time"
)

func TestRecordRejectsBadInput(t *testing.T) {
	store := New(10)

	if err := store.Record("e1", -5, time.Now()); err == nil {
		t.Fatal("negative price should be rejected")
	}
	if err := store.Record("e1", 0, time.Now()); err == nil {
		t.Fatal("zero price should be rejected")
	}
	if err := store.Record("", 100, time.Now()); err == nil {
		t.Fatal("empty entity id should be rejected")
	}
	if store.Len("e1") != 0 {
		t.Fatalf("rejected samples must not be stored, got %d", store.Len("e1"))
	}
}

func TestStatsEmpty(t *testing.T) {
	store := New(10)
	stats, ok := store.Stats("missing")
	if ok {
		t.Fatal("empty history should report ok=false")
	}
	if stats.Count != 0 {
		t.Fatalf("empty history count = %d, want 0", stats.Count)
	}
}

func TestStatsMeanAndStdDev(t *testing.T) {
	store := New(10)
	now := time.Now()
	for _, price := range []int64{800, 1000, 1200} {
		if err := store.Record("e1", price, now); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	stats, ok := store.Stats("e1")
	if !ok {
		t.Fatal("expected stats")
	}
	if stats.Count != 3 {
		t.Fatalf("count = %d, want 3", stats.Count)
	}
	if stats.Mean != 1000 {
		t.Fatalf("mean = %f, want 1000", stats.Mean)
	}
	// Population std of {800,1000,1200}.
	want := math.Sqrt((200.0*200 + 0 + 200*200) / 3)
	if math.Abs(stats.StdDev-want) > 1e-9 {
		t.Fatalf("stddev = %f, want %f", stats.StdDev, want)
	}
}

func TestStatsConstantSeriesHasZeroStdDev(t *testing.T) {
	store := New(10)
	for i := 0; i < 5; i++ {
		if err := store.Record("e1", 1000, time.Now()); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	stats, _ := store.Stats("e1")
	if stats.StdDev != 0 {
		t.Fatalf("stddev of constant series = %f, want 0", stats.StdDev)
	}
}

func TestFIFOEviction(t *testing.T) {
	const maxPoints = 5
	store := New(maxPoints)
	now := time.Now()

	for i := int64(1); i <= maxPoints+1; i++ {
		if err := store.Record("e1", i*100, now); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	if got := store.Len("e1"); got != maxPoints {
		t.Fatalf("len = %d, want %d", got, maxPoints)
	}

	prices := store.Prices("e1")
	want := []int64{200, 300, 400, 500, 600}
	if len(prices) != len(want) {
		t.Fatalf("prices = %v, want %v", prices, want)
	}
	for i := range want {
		if prices[i] != want[i] {
			t.Fatalf("prices = %v, want %v (oldest evicted first)", prices, want)
		}
	}
}

func TestSampleCountNeverExceedsMaxPoints(t *testing.T) {
	const maxPoints = 7
	store := New(maxPoints)

	for total := 1; total <= 3*maxPoints; total++ {
		if err := store.Record("e1", int64(total), time.Now()); err != nil {
			t.Fatalf("record: %v", err)
		}
		stats, _ := store.Stats("e1")
		want := total
		if want > maxPoints {
			want = maxPoints
		}
		if stats.Count != want {
			t.Fatalf("after %d records count = %d, want min(total, max) = %d", total, stats.Count, want)
		}
	}
}

func TestEntitiesAreIndependent(t *testing.T) {
	store := New(3)
	_ = store.Record("a", 100, time.Now())
	_ = store.Record("b", 900, time.Now())

	statsA, _ := store.Stats("a")
	statsB, _ := store.Stats("b")
	if statsA.Mean != 100 || statsB.Mean != 900 {
		t.Fatalf("cross-entity contamination: a=%f b=%f", statsA.Mean, statsB.Mean)
	}
	if store.Entities() != 2 {
		t.Fatalf("entities = %d, want 2", store.Entities())
	}
}
