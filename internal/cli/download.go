package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/batch"
	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/logging"
	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/merge"
	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/pagination"
	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/state"
)

var (
	resumeBatch int
	delayFlag   time.Duration
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the full catalog and merge it into the final CSV",
	Long: `Download fetches every page of the symbol catalog, one request at a
time, writing a batch CSV per page and checkpointing the continuation
cursor after each one. When the catalog is exhausted the batches are
merged, deduplicated by symbol, and written as both a timestamped
snapshot and all_symbols_latest.csv.

If a previous run was interrupted, download picks up from the saved
checkpoint. Use --resume to force a specific batch index instead.`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().IntVar(&resumeBatch, "resume", 0, "force resume from this batch index (overrides the saved index)")
	downloadCmd.Flags().DurationVar(&delayFlag, "delay", 0, "inter-request delay (overrides config)")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger("download")

	stopMetrics := serveMetrics(cfg.MetricsAddr)
	defer stopMetrics()

	client, err := newCatalogClient()
	if err != nil {
		return err
	}

	writer, err := batch.NewWriter(cfg.Output.Dir)
	if err != nil {
		return err
	}
	stateMgr := state.NewManager(cfg.Output.Dir)

	delay := cfg.Catalog.Delay
	if cmd.Flags().Changed("delay") {
		delay = delayFlag
	}

	runner, err := pagination.NewRunner(pagination.Config{
		Fetcher:    client,
		Batches:    writer,
		State:      stateMgr,
		Delay:      delay,
		MaxBatches: cfg.Catalog.MaxBatches,
		ForceBatch: resumeBatch,
	})
	if err != nil {
		return err
	}

	reason, err := runner.Run(ctx)
	if reason != pagination.Completed {
		if reason == pagination.FailedTransient {
			logger.Warn().Msg("Run failed on a transient error; re-run download to resume from the checkpoint")
		}
		return fmt.Errorf("download %s: %w", reason, err)
	}

	batchPaths := runner.BatchPaths()
	if len(batchPaths) == 0 {
		// Legitimate no-data run: nothing to merge, nothing to clear
		logger.Info().Msg("Catalog returned no symbols")
		return nil
	}

	return finalize(batchPaths, stateMgr)
}

// finalize merges the batches, optionally splits by exchange, archives the
// consumed batch files, and clears the resume state. Ordering matters:
// state is only cleared after the merged output is durably on disk.
func finalize(batchPaths []string, stateMgr *state.Manager) error {
	logger := logging.NewLogger("download")

	merger := merge.NewMerger(cfg.Output.Dir)
	result, err := merger.Merge(batchPaths)
	if err != nil {
		// Batches and state stay untouched so the merge can be retried
		return err
	}

	if cfg.Output.SplitByExchange {
		if err := merger.SplitByExchange(result.Header, result.Rows); err != nil {
			logger.Warn().Err(err).Msg("Split by exchange skipped")
		}
	}

	if !cfg.Output.KeepBatches {
		if err := merger.Archive(batchPaths); err != nil {
			return err
		}
	}

	if err := stateMgr.Clear(); err != nil {
		return err
	}

	logger.Info().
		Int("unique_symbols", len(result.Rows)).
		Int("duplicates_removed", result.DuplicatesRemoved).
		Str("snapshot", result.TimestampedPath).
		Str("latest", result.LatestPath).
		Msg("Download complete")

	return nil
}

// serveMetrics exposes /metrics while the run is in flight. Returns a stop
// function; a no-op when no address is configured.
func serveMetrics(addr string) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger := logging.NewLogger("metrics")
			logger.Warn().Err(err).Msg("Metrics server stopped")
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
