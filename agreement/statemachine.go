package agreement

import "time"

// transitions is the authoritative set of legal status edges. An agreement
// may skip forward past states the provider never reported (a "completed"
// envelope event can arrive while we still hold "sent"), so sent and viewed
// both reach signed directly. Completed is reachable only from signed.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusSent},
	StatusSent:      {StatusViewed, StatusSigned, StatusCancelled},
	StatusViewed:    {StatusSigned, StatusCancelled},
	StatusSigned:    {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition reports whether to is reachable from from. Re-applying the
// current status is always allowed so that at-least-once webhook delivery
// stays idempotent.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave the status.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

// IsValidStatus reports whether s is a known lifecycle state.
func IsValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// IsExpired reports whether the agreement has logically expired. Expiry is a
// computed predicate, never a stored transition: a late-arriving "completed"
// event must still be applicable after the nominal expiry instant.
func IsExpired(a Agreement, now time.Time) bool {
	if a.Status != StatusSent && a.Status != StatusViewed {
		return false
	}
	return a.ExpirationDate != nil && now.After(*a.ExpirationDate)
}

// milestoneColumn maps each entered status to the timestamp column it stamps.
var milestoneColumn = map[Status]string{
	StatusSent:      "sent_date",
	StatusViewed:    "viewed_date",
	StatusSigned:    "signed_date",
	StatusCompleted: "completed_date",
}
