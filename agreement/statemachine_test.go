package agreement

import (
	"testing"
	"time"
)

func TestCanTransition_LegalEdges(t *testing.T) {
	legal := []struct {
		from, to Status
	}{
		{StatusDraft, StatusSent},
		{StatusSent, StatusViewed},
		{StatusSent, StatusSigned},
		{StatusSent, StatusCancelled},
		{StatusViewed, StatusSigned},
		{StatusViewed, StatusCancelled},
		{StatusSigned, StatusCompleted},
		{StatusSigned, StatusCancelled},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectedEdges(t *testing.T) {
	illegal := []struct {
		from, to Status
	}{
		{StatusDraft, StatusViewed},
		{StatusDraft, StatusSigned},
		{StatusDraft, StatusCompleted},
		{StatusDraft, StatusCancelled},
		{StatusSent, StatusCompleted},
		{StatusViewed, StatusCompleted},
		{StatusViewed, StatusSent},
		{StatusSigned, StatusSent},
		{StatusCompleted, StatusCancelled},
		{StatusCompleted, StatusSigned},
		{StatusCancelled, StatusSent},
		{StatusCancelled, StatusCompleted},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestCanTransition_SameStatusIsIdempotent(t *testing.T) {
	for from := range transitions {
		if !CanTransition(from, from) {
			t.Errorf("expected %s -> %s to be allowed as a no-op", from, from)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(StatusCompleted) || !IsTerminal(StatusCancelled) {
		t.Fatal("expected completed and cancelled to be terminal")
	}
	for _, s := range []Status{StatusDraft, StatusSent, StatusViewed, StatusSigned} {
		if IsTerminal(s) {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name string
		ag   Agreement
		want bool
	}{
		{"sent past expiry", Agreement{Status: StatusSent, ExpirationDate: &past}, true},
		{"viewed past expiry", Agreement{Status: StatusViewed, ExpirationDate: &past}, true},
		{"sent before expiry", Agreement{Status: StatusSent, ExpirationDate: &future}, false},
		{"no expiration", Agreement{Status: StatusSent}, false},
		{"signed past expiry", Agreement{Status: StatusSigned, ExpirationDate: &past}, false},
		{"completed past expiry", Agreement{Status: StatusCompleted, ExpirationDate: &past}, false},
	}
	for _, tc := range cases {
		if got := IsExpired(tc.ag, now); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestMilestoneColumns(t *testing.T) {
	for _, s := range []Status{StatusSent, StatusViewed, StatusSigned, StatusCompleted} {
		if _, ok := milestoneColumn[s]; !ok {
			t.Errorf("expected milestone column for %s", s)
		}
	}
	if _, ok := milestoneColumn[StatusCancelled]; ok {
		t.Error("cancelled must not stamp a milestone timestamp")
	}
}
