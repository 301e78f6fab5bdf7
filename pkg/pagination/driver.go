package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/batch"
	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/catalog"
	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/logging"
	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/progress"
	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/state"
)

// TerminationReason describes how a download run ended.
type TerminationReason string

const (
	// Completed means the catalog was fully paginated.
	Completed TerminationReason = "completed"

	// FailedTransient means retries were exhausted on a transient error.
	// The run is resumable: state reflects the last durable batch.
	FailedTransient TerminationReason = "failed_transient"

	// FailedFatal means an unrecoverable error aborted the run.
	FailedFatal TerminationReason = "failed_fatal"
)

// ErrBatchLimit is returned when the safety cap on batch count is hit,
// which indicates a cursor loop or a catalog far larger than expected.
var ErrBatchLimit = errors.New("batch safety limit reached")

// DefaultMaxBatches caps a run at this many pages.
const DefaultMaxBatches = 1000

// PageFetcher fetches one catalog page at a cursor.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor string) (*catalog.Page, error)
}

// Config wires the runner's collaborators.
type Config struct {
	// Fetcher retrieves pages (usually *catalog.Client).
	Fetcher PageFetcher

	// Batches persists each page as a batch file.
	Batches *batch.Writer

	// State checkpoints the cursor after every durable batch.
	State *state.Manager

	// Delay between consecutive page requests.
	Delay time.Duration

	// MaxBatches caps the run (default DefaultMaxBatches).
	MaxBatches int

	// ForceBatch, when > 0, overrides the saved batch index and resumes
	// at exactly this batch. The cursor still comes from the state file.
	ForceBatch int
}

// Runner holds the mutable state of one download run. All run state lives
// here rather than in package globals so independent runs can coexist in
// one process (and in tests).
type Runner struct {
	config Config
	logger zerolog.Logger

	cursor     string
	nextBatch  int
	batchPaths []string
	totalFound int
	exhausted  bool
}

// NewRunner creates a runner for one download run.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if cfg.Batches == nil {
		return nil, fmt.Errorf("batch writer is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("state manager is required")
	}
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = DefaultMaxBatches
	}

	return &Runner{
		config:    cfg,
		logger:    logging.NewLogger("driver"),
		nextBatch: 1,
	}, nil
}

// Run downloads the catalog until exhaustion or an unrecovered error.
// On FailedTransient and FailedFatal the returned error describes the
// cause; on Completed it is nil.
func (r *Runner) Run(ctx context.Context) (TerminationReason, error) {
	if err := r.restore(); err != nil {
		return FailedFatal, err
	}

	if r.exhausted {
		// A prior run fetched every page and crashed before the merge.
		r.logger.Info().
			Int("batches", len(r.batchPaths)).
			Msg("All batches already on disk, nothing to fetch")
		return Completed, nil
	}

	reporter := progress.NewReporter(0, r.totalFound)

	for {
		if r.nextBatch > r.config.MaxBatches {
			return FailedFatal, fmt.Errorf("%w: %d batches", ErrBatchLimit, r.config.MaxBatches)
		}

		batchStart := time.Now()
		page, err := r.config.Fetcher.FetchPage(ctx, r.cursor)
		if err != nil {
			if catalog.IsTransient(err) {
				r.logger.Error().Err(err).
					Int("batch", r.nextBatch).
					Msg("Transient failure exhausted retries, run is resumable")
				return FailedTransient, err
			}
			r.logger.Error().Err(err).
				Int("batch", r.nextBatch).
				Msg("Fatal catalog error")
			return FailedFatal, err
		}

		if r.nextBatch == 1 && page.TotalFound > 0 {
			r.totalFound = page.TotalFound
			reporter.SetTotal(page.TotalFound)
			r.logger.Info().
				Int("total_found", page.TotalFound).
				Msg("Catalog total reported")
		}

		if page.Empty() {
			// The empty terminal page is not persisted as a batch; an
			// empty first page is a legitimate no-data run.
			r.logger.Info().
				Int("batch", r.nextBatch).
				Msg("Empty page, catalog exhausted")
			reporter.Summary()
			return Completed, nil
		}

		path, err := r.config.Batches.WriteBatch(r.nextBatch, page.Columns, page.Rows())
		if err != nil {
			return FailedFatal, fmt.Errorf("persist batch %d: %w", r.nextBatch, err)
		}
		r.batchPaths = append(r.batchPaths, path)

		// Checkpoint strictly after the batch file is durable. A crash
		// between these two steps re-fetches this batch on resume and
		// overwrites the same file.
		cursor := ""
		if !page.Done() {
			cursor = page.NextKey
		}
		if err := r.config.State.Checkpoint(r.nextBatch, cursor, r.batchPaths, r.totalFound); err != nil {
			return FailedFatal, err
		}

		reporter.Observe(r.nextBatch, len(page.Records), time.Since(batchStart))

		if page.Done() {
			// Final page with records: persisted above, then terminate.
			r.logger.Info().
				Int("batches", len(r.batchPaths)).
				Msg("Catalog exhausted")
			reporter.Summary()
			return Completed, nil
		}

		r.cursor = page.NextKey
		r.nextBatch++

		if err := r.pause(ctx); err != nil {
			return FailedTransient, err
		}
	}
}

// BatchPaths returns the batch files of the run in ascending index order,
// valid after Run returns.
func (r *Runner) BatchPaths() []string {
	return r.batchPaths
}

// restore loads the resume state and positions the runner. A corrupt state
// file fails the run; the operator decides whether to repair or remove it.
func (r *Runner) restore() error {
	st, err := r.config.State.Load()
	if err != nil {
		return err
	}

	if st == nil {
		if r.config.ForceBatch > 0 {
			// Forced resume without a state file: the caller owns the
			// cursor correctness, batches before the forced index must
			// already be on disk.
			r.positionAt(r.config.ForceBatch, "")
		}
		return nil
	}

	r.totalFound = st.TotalFound

	if r.config.ForceBatch > 0 {
		r.positionAt(r.config.ForceBatch, st.Cursor)
		r.logger.Info().
			Int("batch", r.config.ForceBatch).
			Msg("Forced resume from batch")
		return nil
	}

	r.cursor = st.Cursor
	r.nextBatch = st.LastCompletedBatch + 1
	r.batchPaths = append(r.batchPaths, st.BatchesWritten...)
	if st.LastCompletedBatch > 0 && st.Cursor == "" {
		r.exhausted = true
	}

	r.logger.Info().
		Int("batch", r.nextBatch).
		Int("batches_on_disk", len(r.batchPaths)).
		Msg("Resuming interrupted download")

	return nil
}

// positionAt points the runner at batchIndex, reconstructing the paths of
// the batches that precede it.
func (r *Runner) positionAt(batchIndex int, cursor string) {
	r.nextBatch = batchIndex
	r.cursor = cursor
	r.batchPaths = r.batchPaths[:0]
	for i := 1; i < batchIndex; i++ {
		r.batchPaths = append(r.batchPaths, r.config.Batches.Path(i))
	}
}

// pause waits the configured inter-request delay, honoring cancellation.
func (r *Runner) pause(ctx context.Context) error {
	if r.config.Delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("cancelled between pages: %w", ctx.Err())
	case <-time.After(r.config.Delay):
		return nil
	}
}
