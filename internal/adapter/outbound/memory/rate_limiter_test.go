package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/evcare/portal-gate/internal/domain/ratelimit"
)

func TestRateLimiter_Allow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter := NewRateLimiter()

	config := ratelimit.Config{
		Rate:   10,
		Burst:  5,
		Period: time.Second,
	}

	result, err := limiter.Allow(ctx, ratelimit.FormatKey(ratelimit.KeyTypeIP, "127.0.0.1"), config)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if !result.Allowed {
		t.Error("First attempt should be allowed")
	}
	if result.Remaining < 0 {
		t.Errorf("Remaining = %d, should be >= 0", result.Remaining)
	}
}

func TestRateLimiter_BurstThenDenied(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter := NewRateLimiter()

	config := ratelimit.Config{
		Rate:   10,
		Burst:  3,
		Period: time.Second,
	}

	allowed, denied := 0, 0
	for i := 0; i < 20; i++ {
		result, err := limiter.Allow(ctx, "burst-key", config)
		if err != nil {
			t.Fatalf("Allow() error on attempt %d: %v", i, err)
		}
		if result.Allowed {
			allowed++
		} else {
			denied++
			if result.RetryAfter <= 0 {
				t.Errorf("Attempt %d denied with RetryAfter = %v, want positive", i, result.RetryAfter)
			}
		}
	}

	if allowed < 3 {
		t.Errorf("Expected at least 3 allowed attempts (burst), got %d", allowed)
	}
	if denied == 0 {
		t.Error("Expected some denied attempts after exhausting burst")
	}
}

func TestRateLimiter_KeyIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter := NewRateLimiter()

	config := ratelimit.Config{
		Rate:   1,
		Burst:  1,
		Period: time.Second,
	}

	// Exhaust the email key
	emailKey := ratelimit.FormatKey(ratelimit.KeyTypeEmail, "admin@evcare.com")
	for i := 0; i < 5; i++ {
		_, _ = limiter.Allow(ctx, emailKey, config)
	}

	// A different email still has its full allowance
	other := ratelimit.FormatKey(ratelimit.KeyTypeEmail, "longstaff@gmail.com")
	result, err := limiter.Allow(ctx, other, config)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if !result.Allowed {
		t.Error("Other email should be allowed (keys are isolated)")
	}
}

func TestRateLimiter_Recovery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter := NewRateLimiter()

	config := ratelimit.Config{
		Rate:   2,
		Burst:  1,
		Period: 100 * time.Millisecond,
	}

	first, err := limiter.Allow(ctx, "recovery-key", config)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if !first.Allowed {
		t.Error("First attempt should be allowed")
	}

	time.Sleep(150 * time.Millisecond)

	after, err := limiter.Allow(ctx, "recovery-key", config)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if !after.Allowed {
		t.Error("Attempt after recovery period should be allowed")
	}
}

func TestRateLimiter_ZeroValuesDefaulted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter := NewRateLimiter()

	// Rate=0 defaults to 1, Burst=0 defaults to Rate
	config := ratelimit.Config{
		Rate:   0,
		Burst:  0,
		Period: time.Second,
	}

	result, err := limiter.Allow(ctx, "zero-key", config)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if !result.Allowed {
		t.Error("First attempt should be allowed even with zero config")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter := NewRateLimiter()

	config := ratelimit.Config{
		Rate:   100,
		Burst:  50,
		Period: time.Second,
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := limiter.Allow(ctx, "concurrent-key", config); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("Concurrent access error: %v", err)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	t.Parallel()

	limiter := NewRateLimiterWithConfig(100*time.Millisecond, 200*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter.StartCleanup(ctx)
	defer limiter.Stop()

	config := ratelimit.Config{
		Rate:   10,
		Burst:  5,
		Period: time.Second,
	}

	keys := []string{"cleanup-key-1", "cleanup-key-2", "cleanup-key-3"}
	for _, key := range keys {
		if _, err := limiter.Allow(ctx, key, config); err != nil {
			t.Fatalf("Allow() error for %s: %v", key, err)
		}
	}

	if got := limiter.Size(); got != len(keys) {
		t.Errorf("Size() = %d after adding, want %d", got, len(keys))
	}

	// maxTTL=200ms + cleanupInterval=100ms + buffer
	time.Sleep(400 * time.Millisecond)

	if got := limiter.Size(); got != 0 {
		t.Errorf("Size() = %d after cleanup, want 0", got)
	}
}

func TestRateLimiterNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := NewRateLimiterWithConfig(50*time.Millisecond, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	limiter.StartCleanup(ctx)

	config := ratelimit.Config{
		Rate:   10,
		Burst:  5,
		Period: time.Second,
	}
	for i := 0; i < 10; i++ {
		_, _ = limiter.Allow(ctx, "leak-test-key", config)
	}

	time.Sleep(150 * time.Millisecond)

	cancel()
	limiter.Stop()
}

func TestRateLimiterStopMultipleCalls(t *testing.T) {
	t.Parallel()

	limiter := NewRateLimiterWithConfig(100*time.Millisecond, 1*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter.StartCleanup(ctx)

	limiter.Stop()
	limiter.Stop()
	limiter.Stop()
}

func TestFormatKey(t *testing.T) {
	t.Parallel()

	got := ratelimit.FormatKey(ratelimit.KeyTypeIP, "10.0.0.1")
	if got != "ratelimit:ip:10.0.0.1" {
		t.Errorf("FormatKey() = %q, want %q", got, "ratelimit:ip:10.0.0.1")
	}
}
