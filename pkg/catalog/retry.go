package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dtn_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dtn_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dtn_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// attemptOutcome is the state of a retry sequence after an attempt.
type attemptOutcome int

const (
	// attemptSucceeded terminates the sequence successfully.
	attemptSucceeded attemptOutcome = iota

	// attemptRetrying schedules another attempt after backoff.
	attemptRetrying

	// attemptFailed terminates the sequence with the attempt's error.
	attemptFailed
)

// classify maps an attempt's error to the next state of the sequence.
func classify(err error, attempt, maxAttempts int) attemptOutcome {
	if err == nil {
		return attemptSucceeded
	}
	if !IsTransient(err) {
		return attemptFailed
	}
	if attempt >= maxAttempts {
		return attemptFailed
	}
	return attemptRetrying
}

// retryWithBackoff executes fn under the retry state machine: each attempt
// either succeeds, fails terminally (fatal error or attempts exhausted), or
// schedules the next attempt after an exponentially growing, jittered
// backoff. The backoff wait respects context cancellation.
func retryWithBackoff(ctx context.Context, config RetryConfig, classOf func(error) ErrorClass, fn func() error) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()

		switch classify(err, attempt, config.MaxAttempts) {
		case attemptSucceeded:
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil

		case attemptFailed:
			lastErr = err
			if !IsTransient(err) {
				// Fatal errors escalate immediately, no retry
				return err
			}
			// Transient error on the final attempt
			errorClass := classOf(err)
			retryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
			log.Warn().
				Str("error_class", string(errorClass)).
				Int("max_attempts", config.MaxAttempts).
				Msg("Retry attempts exhausted")
			return fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, config.MaxAttempts, lastErr)

		case attemptRetrying:
			lastErr = err
			errorClass := classOf(err)
			retriesTotal.WithLabelValues(string(errorClass)).Inc()

			// Add jitter (±20% randomness)
			jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
			retryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

			log.Warn().
				Err(err).
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Dur("backoff", jitter).
				Msg("Retrying request after backoff")

			select {
			case <-ctx.Done():
				log.Warn().
					Int("attempt", attempt).
					Msg("Context cancelled during retry backoff")
				return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			case <-time.After(jitter):
			}

			backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	return lastErr
}
