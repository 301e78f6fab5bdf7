// Package merge consolidates batch files into the final symbol catalog:
// concatenate in batch order, deduplicate by symbol, write the timestamped
// snapshot plus the "latest" pointer file.
package merge

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/batch"
	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/logging"
)

// ErrMerge indicates an inconsistency during consolidation: a missing or
// unreadable batch file, or a column layout that differs between batches.
// No batch file is deleted when merge fails, so the merge can be retried.
var ErrMerge = errors.New("merge failed")

// LatestFileName is the pointer file overwritten on every successful run.
const LatestFileName = "all_symbols_latest.csv"

// symbolColumn is the identity key for deduplication.
const symbolColumn = "symbol"

// Result describes a completed merge.
type Result struct {
	// TimestampedPath is the immutable snapshot file.
	TimestampedPath string

	// LatestPath is the pointer file with identical contents.
	LatestPath string

	// Header and Rows are the deduplicated output.
	Header []string
	Rows   [][]string

	// TotalRecords counts records across all batches before dedup.
	TotalRecords int

	// DuplicatesRemoved counts records dropped by dedup.
	DuplicatesRemoved int
}

// Merger writes consolidated output files into one directory.
type Merger struct {
	outputDir string
	logger    zerolog.Logger

	// now is swappable for tests that pin the snapshot timestamp.
	now func() time.Time
}

// NewMerger creates a merger writing into outputDir.
func NewMerger(outputDir string) *Merger {
	return &Merger{
		outputDir: outputDir,
		logger:    logging.NewLogger("merger"),
		now:       time.Now,
	}
}

// Merge reads the batch files in the given (ascending index) order,
// validates a consistent column layout, deduplicates by symbol keeping the
// first occurrence, and writes both output files. Batch files are left
// untouched; call Archive after the caller is done with them.
func (m *Merger) Merge(batchPaths []string) (*Result, error) {
	if len(batchPaths) == 0 {
		return nil, fmt.Errorf("%w: no batch files", ErrMerge)
	}

	var header []string
	var rows [][]string
	symbolIdx := -1

	for _, path := range batchPaths {
		batchHeader, batchRows, err := batch.ReadBatch(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMerge, err)
		}

		if header == nil {
			header = batchHeader
			symbolIdx = slices.Index(header, symbolColumn)
			if symbolIdx < 0 {
				return nil, fmt.Errorf("%w: %s has no %q column", ErrMerge, path, symbolColumn)
			}
		} else if !slices.Equal(header, batchHeader) {
			return nil, fmt.Errorf("%w: column mismatch in %s: got %v, want %v",
				ErrMerge, path, batchHeader, header)
		}

		rows = append(rows, batchRows...)
	}

	// Keep-first dedup: when the catalog returns the same symbol twice,
	// the earlier batch wins even if the later record has fresher fields.
	seen := make(map[string]bool, len(rows))
	unique := rows[:0]
	for _, row := range rows {
		key := row[symbolIdx]
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, row)
	}
	duplicates := len(rows) - len(unique)

	timestamp := m.now().UTC().Format("20060102_150405")
	timestampedPath := filepath.Join(m.outputDir, fmt.Sprintf("all_symbols_%s.csv", timestamp))
	latestPath := filepath.Join(m.outputDir, LatestFileName)

	if err := writeCSVAtomic(timestampedPath, header, unique); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMerge, err)
	}
	if err := writeCSVAtomic(latestPath, header, unique); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMerge, err)
	}

	m.logger.Info().
		Int("batches", len(batchPaths)).
		Int("records", len(rows)).
		Int("unique", len(unique)).
		Int("duplicates_removed", duplicates).
		Str("output", timestampedPath).
		Msg("Merge complete")

	return &Result{
		TimestampedPath:   timestampedPath,
		LatestPath:        latestPath,
		Header:            header,
		Rows:              unique,
		TotalRecords:      len(rows),
		DuplicatesRemoved: duplicates,
	}, nil
}

// Archive moves consumed batch files into an archive/ subdirectory. Only
// called after the merged output is durably written.
func (m *Merger) Archive(batchPaths []string) error {
	archiveDir := filepath.Join(m.outputDir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	for _, path := range batchPaths {
		dest := filepath.Join(archiveDir, filepath.Base(path))
		if err := os.Rename(path, dest); err != nil {
			return fmt.Errorf("archive %s: %w", path, err)
		}
	}

	m.logger.Info().
		Int("batches", len(batchPaths)).
		Str("dir", archiveDir).
		Msg("Batch files archived")

	return nil
}

// SplitByExchange writes the merged catalog into
// by_exchange/<exchange>/<securityType>.csv group files.
func (m *Merger) SplitByExchange(header []string, rows [][]string) error {
	exchangeIdx := slices.Index(header, "exchange")
	secTypeIdx := slices.Index(header, "securityType")
	if exchangeIdx < 0 || secTypeIdx < 0 {
		return fmt.Errorf("catalog is missing exchange or securityType columns, cannot split")
	}

	type group struct {
		exchange string
		secType  string
	}
	groups := make(map[group][][]string)
	for _, row := range rows {
		g := group{exchange: row[exchangeIdx], secType: row[secTypeIdx]}
		groups[g] = append(groups[g], row)
	}

	splitDir := filepath.Join(m.outputDir, "by_exchange")
	for g, groupRows := range groups {
		dir := filepath.Join(splitDir, sanitizeName(g.exchange))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create exchange directory: %w", err)
		}
		path := filepath.Join(dir, sanitizeName(g.secType)+".csv")
		if err := writeCSVAtomic(path, header, groupRows); err != nil {
			return err
		}
	}

	m.logger.Info().
		Int("groups", len(groups)).
		Str("dir", splitDir).
		Msg("Split by exchange complete")

	return nil
}

// sanitizeName makes a catalog value safe as a path segment.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "UNKNOWN"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, name)
}

// writeCSVAtomic writes a CSV file via temp file + rename.
func writeCSVAtomic(path string, header []string, rows [][]string) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp output file: %w", err)
	}
	tmpName := tmp.Name()

	cw := csv.NewWriter(tmp)
	if err := cw.Write(header); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write output header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write output rows: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flush output file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync output file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close output file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename output file: %w", err)
	}
	return nil
}
