package embedder

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repomd/vaultproc/pkg/types"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestCache(t *testing.T) {
	t.Run("get returns a copy", func(t *testing.T) {
		c := NewCache(4)
		c.Set("k", []float32{1, 2, 3})

		got, ok := c.Get("k")
		require.True(t, ok)
		got[0] = 99

		again, _ := c.Get("k")
		assert.Equal(t, []float32{1, 2, 3}, again)
	})

	t.Run("set stores a copy", func(t *testing.T) {
		c := NewCache(4)
		v := []float32{1, 2}
		c.Set("k", v)
		v[0] = 7

		got, _ := c.Get("k")
		assert.Equal(t, []float32{1, 2}, got)
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		c := NewCache(2)
		c.Set("a", []float32{1})
		c.Set("b", []float32{2})
		c.Get("a")
		c.Set("c", []float32{3})

		_, okA := c.Get("a")
		_, okB := c.Get("b")
		assert.True(t, okA)
		assert.False(t, okB)
		assert.Equal(t, 2, c.Size())
	})

	t.Run("nil cache is a no-op", func(t *testing.T) {
		var c *Cache
		c.Set("k", []float32{1})
		_, ok := c.Get("k")
		assert.False(t, ok)
		assert.Zero(t, c.Size())
	})

	t.Run("clear", func(t *testing.T) {
		c := NewCache(0)
		c.Set("k", []float32{1})
		c.Clear()
		assert.Zero(t, c.Size())
	})
}

func TestCacheKeyScopedByModel(t *testing.T) {
	assert.NotEqual(t, cacheKey("a", "text"), cacheKey("b", "text"))
	assert.Equal(t, cacheKey("a", "text"), cacheKey("a", "text"))
}

func TestValidateBatch(t *testing.T) {
	assert.ErrorIs(t, validateBatch(nil), ErrInvalidInput)
	assert.ErrorIs(t, validateBatch([]string{"ok", ""}), ErrEmptyText)
	assert.NoError(t, validateBatch([]string{"ok"}))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &statusError{Status: http.StatusBadGateway}, true},
		{"rate limited", &statusError{Status: http.StatusTooManyRequests}, true},
		{"timeout", &statusError{Status: http.StatusRequestTimeout}, true},
		{"bad request", &statusError{Status: http.StatusBadRequest}, false},
		{"unauthorized", &statusError{Status: http.StatusUnauthorized}, false},
		{"network", errors.New("connection reset"), true},
		{"invalid input", ErrInvalidInput, false},
		{"dimension mismatch", types.ErrDimensionMismatch, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds after transient errors", func(t *testing.T) {
		calls := 0
		got, err := retryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
			calls++
			if calls < 3 {
				return 0, &statusError{Status: http.StatusServiceUnavailable}
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		_, err := retryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
			calls++
			return 0, &statusError{Status: http.StatusInternalServerError}
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		calls := 0
		_, err := retryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
			calls++
			return 0, &statusError{Status: http.StatusBadRequest}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := retryWithBackoff(ctx, fastRetry(), func() (int, error) {
			calls++
			cancel()
			return 0, errors.New("boom")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
