package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDoRetriesTransientErrors(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}
	calls := 0

	err := p.Do(context.Background(), testLogger(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: rate limited", domain.ErrTransient)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("called %d times, want 3", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}
	calls := 0
	sentinel := fmt.Errorf("%w: bad credentials", domain.ErrPermanent)

	err := p.Do(context.Background(), testLogger(), "op", func(ctx context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, domain.ErrPermanent) {
		t.Fatalf("got %v", err)
	}
	if calls != 1 {
		t.Errorf("permanent error retried: %d calls", calls)
	}
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond}
	calls := 0

	err := p.Do(context.Background(), testLogger(), "op", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("%w: still down", domain.ErrTransient)
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if !errors.Is(err, domain.ErrTransient) {
		t.Errorf("final error lost its class: %v", err)
	}
	if calls != 2 {
		t.Errorf("called %d times, want 2", calls)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, testLogger(), "op", func(ctx context.Context) error {
			return fmt.Errorf("%w: down", domain.ErrTransient)
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}
