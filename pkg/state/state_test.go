package state

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_NoStateFile(t *testing.T) {
	m := NewManager(t.TempDir())

	st, err := m.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if st != nil {
		t.Errorf("Load() = %+v, want nil for a fresh directory", st)
	}
}

func TestCheckpointAndLoad(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	paths := []string{
		filepath.Join(dir, "batch_000001.csv"),
		filepath.Join(dir, "batch_000002.csv"),
	}
	if err := m.Checkpoint(2, "k3", paths, 12345); err != nil {
		t.Fatalf("Checkpoint() error: %v", err)
	}

	// A fresh manager must see the same state
	st, err := NewManager(dir).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if st == nil {
		t.Fatal("Load() = nil, want state")
	}
	if st.LastCompletedBatch != 2 {
		t.Errorf("LastCompletedBatch = %d, want 2", st.LastCompletedBatch)
	}
	if st.Cursor != "k3" {
		t.Errorf("Cursor = %q, want k3", st.Cursor)
	}
	if len(st.BatchesWritten) != 2 {
		t.Errorf("len(BatchesWritten) = %d, want 2", len(st.BatchesWritten))
	}
	if st.TotalFound != 12345 {
		t.Errorf("TotalFound = %d, want 12345", st.TotalFound)
	}
	if st.CreatedAt.IsZero() || st.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestCheckpoint_PreservesCreatedAt(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	if err := m.Checkpoint(1, "k2", nil, 0); err != nil {
		t.Fatalf("Checkpoint() error: %v", err)
	}
	first, err := m.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if err := m.Checkpoint(2, "k3", nil, 0); err != nil {
		t.Fatalf("Checkpoint() error: %v", err)
	}
	second, err := m.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed between checkpoints: %v != %v", second.CreatedAt, first.CreatedAt)
	}
}

func TestLoad_CorruptState(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "not json",
			content: "{{{",
		},
		{
			name:    "negative batch index",
			content: `{"last_completed_batch_index": -3}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, StateFileName), []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			_, err := NewManager(dir).Load()
			if !errors.Is(err, ErrStateCorrupt) {
				t.Errorf("Load() error = %v, want ErrStateCorrupt", err)
			}
		})
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	if err := m.Checkpoint(1, "k2", nil, 0); err != nil {
		t.Fatalf("Checkpoint() error: %v", err)
	}
	if err := m.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	st, err := m.Load()
	if err != nil {
		t.Fatalf("Load() after Clear error: %v", err)
	}
	if st != nil {
		t.Errorf("Load() after Clear = %+v, want nil", st)
	}

	// Clearing again is not an error
	if err := m.Clear(); err != nil {
		t.Errorf("second Clear() error: %v", err)
	}
}

func TestCheckpoint_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	if err := m.Checkpoint(1, "k2", nil, 0); err != nil {
		t.Fatalf("Checkpoint() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
}
