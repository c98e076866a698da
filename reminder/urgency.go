package reminder

import "time"

// Urgency is a reminder's severity tier, derived from days until expiry. It
// controls message tone; final supersedes urgent supersedes standard.
type Urgency string

const (
	UrgencyNone     Urgency = ""
	UrgencyStandard Urgency = "standard"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyFinal    Urgency = "final"
)

// DaysUntilExpiry returns the whole days remaining until expiration, rounding
// partial days up. An expiry later today is 1 day away, never 0.
func DaysUntilExpiry(expiration, now time.Time) int {
	d := expiration.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// Classify maps days-until-expiry onto an urgency tier for the given config.
// The tiers nest: every day inside the final window is also inside the urgent
// and standard windows, so decreasing days never decreases urgency.
func Classify(days int, cfg Config) Urgency {
	switch {
	case days <= cfg.Final:
		return UrgencyFinal
	case days <= cfg.Urgent:
		return UrgencyUrgent
	case days <= cfg.Initial:
		return UrgencyStandard
	}
	for _, offset := range cfg.Followup {
		if days == offset {
			return UrgencyStandard
		}
	}
	return UrgencyNone
}
