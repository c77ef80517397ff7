package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestMessageLimiterBurstThenSteadyRate(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewMessageLimiter(clk, 5)

	for i := 0; i < BurstFactor*5; i++ {
		if !l.Allow() {
			t.Fatalf("message %d of the burst refused", i)
		}
	}
	if l.Allow() {
		t.Fatalf("expected the burst to be exhausted")
	}

	clk.Advance(200 * time.Millisecond) // one message at 5/sec
	if !l.Allow() {
		t.Fatalf("expected one message after 200ms")
	}
	if l.Allow() {
		t.Fatalf("expected exactly one message to be admitted")
	}
	if got := l.Dropped(); got != 2 {
		t.Fatalf("Dropped()=%d, want 2", got)
	}
}

func TestMessageLimiterIdleDoesNotBankBeyondBurst(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := NewMessageLimiter(clk, 1)

	clk.Advance(time.Hour)
	for i := 0; i < BurstFactor; i++ {
		if !l.Allow() {
			t.Fatalf("message %d refused after idling", i)
		}
	}
	if l.Allow() {
		t.Fatalf("idle time must not grow the burst")
	}
}

func TestMessageLimiterDisabled(t *testing.T) {
	l := NewMessageLimiter(nil, 0)
	if l != nil {
		t.Fatalf("expected nil limiter for a zero rate")
	}
	for i := 0; i < 1000; i++ {
		if !l.Allow() {
			t.Fatalf("nil limiter refused message %d", i)
		}
	}
	if l.Dropped() != 0 {
		t.Fatalf("nil limiter reported drops")
	}
}
