package progress

import (
	"testing"
	"time"
)

func TestReporter_Observe(t *testing.T) {
	r := NewReporter(0, 100)

	r.Observe(1, 40, 10*time.Millisecond)
	r.Observe(2, 40, 10*time.Millisecond)

	if r.Downloaded() != 80 {
		t.Errorf("Downloaded() = %d, want 80", r.Downloaded())
	}
}

func TestReporter_SeededForResume(t *testing.T) {
	// A resumed run starts from the records its predecessor persisted
	r := NewReporter(50, 100)

	r.Observe(2, 25, 10*time.Millisecond)

	if r.Downloaded() != 75 {
		t.Errorf("Downloaded() = %d, want 75", r.Downloaded())
	}
}

func TestReporter_SetTotal(t *testing.T) {
	r := NewReporter(0, 0)

	r.SetTotal(500)
	if r.total != 500 {
		t.Errorf("total = %d, want 500", r.total)
	}

	// A zero total from the catalog must not erase a known one
	r.SetTotal(0)
	if r.total != 500 {
		t.Errorf("total = %d after SetTotal(0), want 500", r.total)
	}
}

func TestReporter_SummaryWithoutBatches(t *testing.T) {
	// Summary on a no-data run must not divide by zero
	NewReporter(0, 0).Summary()
}
