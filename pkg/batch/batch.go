// Package batch persists one catalog page per CSV file. Files are written
// atomically (temp file + rename) so a crash never leaves a half-written
// batch behind, and a completed batch file is never touched again except
// by an explicit re-fetch of the same index.
package batch

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/logging"
)

// Writer persists batch files into one output directory.
type Writer struct {
	dir    string
	logger zerolog.Logger
}

// NewWriter creates a batch writer rooted at dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create batch directory: %w", err)
	}
	return &Writer{
		dir:    dir,
		logger: logging.NewLogger("batch-writer"),
	}, nil
}

// Dir returns the batch directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Path returns the file path for a batch index. Indices are 1-based and
// zero-padded so lexical order equals batch order.
func (w *Writer) Path(index int) string {
	return filepath.Join(w.dir, fmt.Sprintf("batch_%06d.csv", index))
}

// WriteBatch writes header and rows as the batch file for index. An
// existing file at the same index is replaced, which is exactly what a
// resumed run wants when it re-fetches the batch that crashed between
// write and checkpoint.
func (w *Writer) WriteBatch(index int, header []string, rows [][]string) (string, error) {
	path := w.Path(index)

	tmp, err := os.CreateTemp(w.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp batch file: %w", err)
	}
	tmpName := tmp.Name()

	cw := csv.NewWriter(tmp)
	if err := cw.Write(header); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write batch header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write batch rows: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("flush batch file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("sync batch file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close batch file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename batch file: %w", err)
	}

	w.logger.Debug().
		Int("batch", index).
		Int("records", len(rows)).
		Str("path", path).
		Msg("Batch file written")

	return path, nil
}

// ReadBatch reads a batch file back as header and rows.
func ReadBatch(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read batch file %s: %w", path, err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("batch file %s has no header", path)
	}

	return all[0], all[1:], nil
}
