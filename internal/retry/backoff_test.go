package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func fastConfig(retries int) Config {
	return Config{
		MaxRetries: retries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestProviderConfig(t *testing.T) {
	cfg := ProviderConfig()
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, 4*time.Second, cfg.MaxDelay)
	assert.True(t, cfg.Jitter)
}

func TestDo_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("API returned unexpected status code: 503")
		}
		return nil
	}, zerolog.Nop())

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Len(t, result.RetryReasons, 2)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		return llms.NewError(llms.ErrCodeAuthentication, "openai", "invalid api key")
	}, zerolog.Nop())

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
	require.Error(t, result.LastError)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	result := Do(context.Background(), fastConfig(2), func(context.Context) error {
		return llms.NewError(llms.ErrCodeRateLimit, "openai", "rate limit exceeded")
	}, zerolog.Nop())

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
}

func TestDo_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(5)
	cfg.BaseDelay = time.Hour
	cfg.MaxDelay = time.Hour

	result := Do(ctx, cfg, func(context.Context) error {
		cancel()
		return llms.NewError(llms.ErrCodeTimeout, "gemini", "request timed out")
	}, zerolog.Nop())

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.LastError, context.Canceled)
}

func TestCalculateDelay(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2.0}

	assert.Equal(t, time.Second, Delay(cfg, 0))
	assert.Equal(t, 2*time.Second, Delay(cfg, 1))
	assert.Equal(t, 4*time.Second, Delay(cfg, 2))
	assert.Equal(t, 5*time.Second, Delay(cfg, 3))

	cfg.Jitter = true
	for i := 0; i < 20; i++ {
		d := Delay(cfg, 1)
		assert.InDelta(t, float64(2*time.Second), float64(d), float64(200*time.Millisecond))
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", llms.NewError(llms.ErrCodeRateLimit, "openai", "slow down"), true},
		{"provider down", fmt.Errorf("generate: %w", llms.NewError(llms.ErrCodeProviderUnavailable, "anthropic", "overloaded")), true},
		{"bad key", llms.NewError(llms.ErrCodeAuthentication, "openai", "401 invalid key"), false},
		{"content filter", llms.NewError(llms.ErrCodeContentFilter, "gemini", "blocked"), false},
		{"unknown wraps reset", llms.NewError(llms.ErrCodeUnknown, "openai", "boom").WithCause(syscall.ECONNRESET), true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"truncated body", io.ErrUnexpectedEOF, true},
		{"status 503", errors.New("API returned unexpected status code: 503"), true},
		{"status 429", errors.New("API returned unexpected status code: 429: slow down"), true},
		{"status 400", errors.New("API returned unexpected status code: 400"), false},
		{"digits in message", errors.New("agent 500 has no posts"), false},
		{"words in message", errors.New("timeout field missing from payload"), false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("generate: %w", context.DeadlineExceeded), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err), "%v", tt.err)
		})
	}
}

func TestStatusCode(t *testing.T) {
	code, ok := StatusCode(errors.New("API returned unexpected status code: 502"))
	assert.True(t, ok)
	assert.Equal(t, 502, code)

	_, ok = StatusCode(errors.New("HTTP 5000 things"))
	assert.False(t, ok)
}
