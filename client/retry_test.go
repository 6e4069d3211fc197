package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
		{name: "503", err: &httpStatusError{StatusCode: 503}, want: true},
		{name: "429", err: &httpStatusError{StatusCode: 429}, want: true},
		{name: "404", err: &httpStatusError{StatusCode: 404}, want: false},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "node"}, want: true},
		{name: "refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "other", err: errors.New("execution reverted"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestCalculateBackoffDelay(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, time.Second, calculateBackoffDelay(0, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoffDelay(1, cfg))
	assert.Equal(t, 4*time.Second, calculateBackoffDelay(2, cfg))
	assert.Equal(t, 10*time.Second, calculateBackoffDelay(5, cfg))
}

func TestWithRetry(t *testing.T) {
	fast := &RetryConfig{MaxRetries: 2, InitialDelay: 1, MaxDelay: 1, BackoffMultiplier: 1}

	t.Run("non retryable stops immediately", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), func() error {
			calls++
			return errors.New("execution reverted")
		}, fast)
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries then succeeds", func(t *testing.T) {
		calls := 0
		var retried []int
		cfg := *fast
		cfg.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }
		err := withRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		}, &cfg)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("no retry returns raw error", func(t *testing.T) {
		want := errors.New("connection refused")
		err := withRetry(context.Background(), func() error { return want }, NoRetryConfig())
		assert.Same(t, want, err)
	})

	t.Run("context canceled during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := &RetryConfig{MaxRetries: 3, InitialDelay: 10000, MaxDelay: 10000, BackoffMultiplier: 1}
		err := withRetry(ctx, func() error {
			cancel()
			return errors.New("timeout")
		}, slow)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
