package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiterPacesSameSite(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1 leaves 100ms between tokens.
	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://catalog.example/a"); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://catalog.example/b"); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiterSitesAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://one.example/"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://two.example/"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if dur := time.Since(start); dur > 50*time.Millisecond {
		t.Errorf("expected independent bucket for second site, waited %v", dur)
	}
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 50; i++ {
		if err := l.Wait(ctx, "https://catalog.example/"); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if dur := time.Since(start); dur > 50*time.Millisecond {
		t.Errorf("expected no pacing, took %v", dur)
	}
}

func TestLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.1, Burst: 1})
	if err := l.Wait(context.Background(), "https://catalog.example/"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://catalog.example/")
	if err == nil {
		t.Fatal("expected error when context expires before a token is available")
	}
	if errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected cancel error %v", err)
	}
}
