// Package progress computes and reports download throughput and completion
// estimates. Observability only: nothing in the download path depends on it.
package progress

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/logging"
)

// Prometheus metrics for download progress.
var (
	symbolsDownloaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dtn_symbols_downloaded",
		Help: "Symbols downloaded so far in the current run",
	})

	progressRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dtn_download_progress_ratio",
		Help: "Fraction of the reported catalog total downloaded (0-1)",
	})

	etaSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dtn_download_eta_seconds",
		Help: "Estimated seconds until the download completes",
	})

	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtn_batches_total",
		Help: "Batches persisted in the current run",
	})
)

// Reporter tracks cumulative counts for one download run.
type Reporter struct {
	startedAt  time.Time
	total      int
	downloaded int
	thisRun    int
	batches    int
	logger     zerolog.Logger
}

// NewReporter creates a reporter. downloaded seeds the cumulative count for
// resumed runs; total is the catalog-reported symbol total (0 if unknown).
func NewReporter(downloaded, total int) *Reporter {
	return &Reporter{
		startedAt:  time.Now(),
		total:      total,
		downloaded: downloaded,
		logger:     logging.NewLogger("progress"),
	}
}

// SetTotal records the catalog total once the first page reports it.
func (r *Reporter) SetTotal(total int) {
	if total > 0 {
		r.total = total
	}
}

// Downloaded returns the cumulative record count.
func (r *Reporter) Downloaded() int {
	return r.downloaded
}

// Observe records one persisted batch and logs progress with ETA.
func (r *Reporter) Observe(batchIndex, records int, batchDuration time.Duration) {
	r.downloaded += records
	r.thisRun += records
	r.batches++

	batchesTotal.Inc()
	symbolsDownloaded.Set(float64(r.downloaded))

	event := r.logger.Info().
		Int("batch", batchIndex).
		Int("records", records).
		Int("downloaded", r.downloaded).
		Dur("batch_duration", batchDuration)

	if r.total > 0 {
		ratio := float64(r.downloaded) / float64(r.total)
		progressRatio.Set(ratio)
		event = event.Float64("progress_pct", ratio*100)

		// ETA from this run's throughput only: a resumed run's pre-seeded
		// count would otherwise skew the estimate.
		elapsed := time.Since(r.startedAt)
		recordsLeft := r.total - r.downloaded
		if r.thisRun > 0 && recordsLeft > 0 {
			perRecord := elapsed.Seconds() / float64(r.thisRun)
			remaining := time.Duration(perRecord * float64(recordsLeft) * float64(time.Second))
			etaSeconds.Set(remaining.Seconds())
			event = event.Dur("eta", remaining)
		}
	}

	event.Msg("Batch complete")
}

// Summary logs the end-of-run totals.
func (r *Reporter) Summary() {
	elapsed := time.Since(r.startedAt)
	event := r.logger.Info().
		Int("batches", r.batches).
		Int("downloaded", r.downloaded).
		Dur("elapsed", elapsed)
	if r.batches > 0 {
		event = event.Dur("avg_batch_duration", elapsed/time.Duration(r.batches))
	}
	event.Msg("Download summary")
}
