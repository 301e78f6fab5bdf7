package catalog

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastRetry keeps test backoffs in the millisecond range.
func fastRetry(maxAttempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func classServer(error) ErrorClass { return ErrorClassServer }

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", config.MaxAttempts)
	}
	if config.InitialBackoff != 2*time.Second {
		t.Errorf("InitialBackoff = %v, want 2s", config.InitialBackoff)
	}
	if config.MaxBackoff != 60*time.Second {
		t.Errorf("MaxBackoff = %v, want 60s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(5), classServer, func() error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	transient := &APIError{StatusCode: 503, Class: ErrorClassServer, Message: "unavailable"}

	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(5), classServer, func() error {
		callCount++
		if callCount < 3 {
			return transient
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_FatalNoRetry(t *testing.T) {
	fatal := &APIError{StatusCode: 404, Class: ErrorClassClient, Message: "not found"}

	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(5), classServer, func() error {
		callCount++
		return fatal
	})

	if !errors.Is(err, fatal) {
		t.Errorf("Expected fatal error returned as-is, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Fatal error must not be retried, got %d calls", callCount)
	}
}

func TestRetryWithBackoff_Exhaustion(t *testing.T) {
	transient := &APIError{StatusCode: 500, Class: ErrorClassServer, Message: "boom"}

	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(3), classServer, func() error {
		callCount++
		return transient
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
	// Exhaustion stays in the transient bucket so the run is resumable
	if !IsTransient(err) {
		t.Error("Exhausted retries should classify as transient")
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	transient := &APIError{Class: ErrorClassNetwork, Err: errors.New("timeout")}

	config := RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}

	callCount := 0
	done := make(chan error, 1)
	go func() {
		done <- retryWithBackoff(ctx, config, classServer, func() error {
			callCount++
			return transient
		})
	}()

	// Cancel while the first backoff wait is in progress
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrContextCancelled) {
			t.Errorf("Expected ErrContextCancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retryWithBackoff did not return after cancellation")
	}

	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestClassify(t *testing.T) {
	transient := &APIError{Class: ErrorClassServer}
	fatal := &APIError{Class: ErrorClassClient}

	tests := []struct {
		name     string
		err      error
		attempt  int
		max      int
		expected attemptOutcome
	}{
		{"nil error succeeds", nil, 1, 5, attemptSucceeded},
		{"transient mid-sequence retries", transient, 2, 5, attemptRetrying},
		{"transient on final attempt fails", transient, 5, 5, attemptFailed},
		{"fatal fails immediately", fatal, 1, 5, attemptFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err, tt.attempt, tt.max); got != tt.expected {
				t.Errorf("classify() = %v, want %v", got, tt.expected)
			}
		})
	}
}
