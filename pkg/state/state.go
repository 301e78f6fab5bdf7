// Package state persists the download checkpoint that lets an interrupted
// run continue exactly where it stopped.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/logging"
)

// StateFileName is the resume state file inside the output directory.
const StateFileName = "download_state.json"

// ErrStateCorrupt indicates the resume state file exists but cannot be
// decoded. Surfaced to the operator instead of silently restarting from
// scratch, which would mask duplicate or lost work.
var ErrStateCorrupt = errors.New("resume state corrupt")

// ResumeState is the durable checkpoint of a download run. It reflects
// only fully written batch files: the driver checkpoints strictly after a
// batch file has been renamed into place.
type ResumeState struct {
	// LastCompletedBatch is the highest batch index whose file is durably
	// on disk. Zero means no batch has completed.
	LastCompletedBatch int `json:"last_completed_batch_index"`

	// Cursor is the continuation key for the page after LastCompletedBatch.
	// Empty means the catalog was exhausted.
	Cursor string `json:"cursor"`

	// BatchesWritten lists the batch file paths in ascending index order.
	BatchesWritten []string `json:"batches_written"`

	// TotalFound is the catalog-reported symbol total, kept so a resumed
	// run can report progress without re-reading the first page.
	TotalFound int `json:"total_found"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Manager owns the resume state file of one output directory. A single
// running instance must own the directory exclusively; concurrent runs
// against the same state file are not supported.
type Manager struct {
	path   string
	logger zerolog.Logger

	// createdAt survives across checkpoints within one process run.
	createdAt time.Time
}

// NewManager creates a state manager for the given output directory.
func NewManager(outputDir string) *Manager {
	return &Manager{
		path:   filepath.Join(outputDir, StateFileName),
		logger: logging.NewLogger("resume-state"),
	}
}

// Path returns the state file location.
func (m *Manager) Path() string {
	return m.path
}

// Load reads the resume state. Returns (nil, nil) when no state file
// exists, and an ErrStateCorrupt-wrapped error when the file cannot be
// decoded.
func (m *Manager) Load() (*ResumeState, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrStateCorrupt, m.path, err)
	}

	var st ResumeState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrStateCorrupt, m.path, err)
	}
	if st.LastCompletedBatch < 0 {
		return nil, fmt.Errorf("%w: negative batch index %d", ErrStateCorrupt, st.LastCompletedBatch)
	}

	m.createdAt = st.CreatedAt
	m.logger.Info().
		Int("batch", st.LastCompletedBatch).
		Str("cursor", st.Cursor).
		Int("batches_written", len(st.BatchesWritten)).
		Msg("Restored resume state")

	return &st, nil
}

// Checkpoint persists the state after batch batchIndex was durably written.
// The write is atomic (temp file + rename) so a crash mid-checkpoint leaves
// the previous state intact.
func (m *Manager) Checkpoint(batchIndex int, cursor string, batchPaths []string, totalFound int) error {
	now := time.Now().UTC()
	if m.createdAt.IsZero() {
		m.createdAt = now
	}

	st := ResumeState{
		LastCompletedBatch: batchIndex,
		Cursor:             cursor,
		BatchesWritten:     batchPaths,
		TotalFound:         totalFound,
		CreatedAt:          m.createdAt,
		UpdatedAt:          now,
	}

	data, err := json.MarshalIndent(&st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal resume state: %w", err)
	}

	if err := writeFileAtomic(m.path, data); err != nil {
		return fmt.Errorf("checkpoint batch %d: %w", batchIndex, err)
	}

	m.logger.Debug().
		Int("batch", batchIndex).
		Str("cursor", cursor).
		Msg("Checkpoint written")

	return nil
}

// Clear removes the state file. Invoked only after a successful final
// merge; a missing file is not an error.
func (m *Manager) Clear() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear resume state: %w", err)
	}
	m.createdAt = time.Time{}
	return nil
}

// writeFileAtomic writes data to path via a temp file in the same
// directory, fsyncs, then renames into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
