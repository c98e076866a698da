package reminder

import (
	"testing"
	"time"
)

func TestRateLimiter_CapsWithinWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	l := NewRateLimiter(2, time.Hour)
	l.now = func() time.Time { return now }

	if !l.Allow("a@example.com") || !l.Allow("a@example.com") {
		t.Fatal("expected first two sends to pass")
	}
	if l.Allow("a@example.com") {
		t.Fatal("expected third send within window to be blocked")
	}

	// Other recipients have independent budgets.
	if !l.Allow("b@example.com") {
		t.Fatal("expected unrelated recipient to pass")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, time.Hour)
	l.now = func() time.Time { return now }

	if !l.Allow("a@example.com") {
		t.Fatal("expected first send to pass")
	}
	if l.Allow("a@example.com") {
		t.Fatal("expected second send to be blocked")
	}

	now = now.Add(61 * time.Minute)
	if !l.Allow("a@example.com") {
		t.Fatal("expected send after window to pass")
	}
}

func TestRateLimiter_ReleaseReturnsSlot(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, time.Hour)
	l.now = func() time.Time { return now }

	if !l.Allow("a@example.com") {
		t.Fatal("expected first send to pass")
	}
	if l.Allow("a@example.com") {
		t.Fatal("expected second send to be blocked")
	}

	l.Release("a@example.com")
	if !l.Allow("a@example.com") {
		t.Fatal("expected slot back after release")
	}

	// Releasing with nothing recorded is a no-op.
	l.Release("b@example.com")
	if !l.Allow("b@example.com") {
		t.Fatal("expected unrelated recipient to pass")
	}
}
