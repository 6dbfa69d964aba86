package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowAllowsUpToLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	l, err := NewRedisFixedWindow(mr.Addr(), "", "test:rl", 2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	fixed := time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	ctx := context.Background()
	if !l.Allow(ctx, "+79990000000") || !l.Allow(ctx, "+79990000000") {
		t.Fatalf("first two hits should pass")
	}
	if l.Allow(ctx, "+79990000000") {
		t.Fatalf("third hit should be blocked")
	}
	if !l.Allow(ctx, "+79990000001") {
		t.Fatalf("other keys are counted separately")
	}

	fixed = fixed.Add(time.Minute)
	if !l.Allow(ctx, "+79990000000") {
		t.Fatalf("next window should reset the counter")
	}
}

func TestFixedWindowFailsClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	l, err := NewRedisFixedWindow(mr.Addr(), "", "", 1, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	mr.Close()
	if l.Allow(context.Background(), "k") {
		t.Fatalf("limiter should deny on redis errors")
	}
}

func TestFixedWindowValidation(t *testing.T) {
	if _, err := NewRedisFixedWindow("", "", "", 1, time.Second); err == nil {
		t.Fatalf("expected error for empty addr")
	}
	if _, err := NewFixedWindow(nil, "", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	mr := miniredis.RunT(t)
	if _, err := NewRedisFixedWindow(mr.Addr(), "", "", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
