package resolver

import "time"

// Clock fixes the expiration boundaries for one batch run. Computing the
// boundaries once keeps every order in the run measured against the same
// instant instead of drifting with wall-clock time mid-batch.
type Clock struct {
	// Now is the batch's reference instant.
	Now time.Time
	// YearAgo is Now minus 365 days; prescriptions effective before this
	// are expired.
	YearAgo time.Time
	// ExpiryWindow is Now minus 335 days; prescriptions effective between
	// YearAgo and ExpiryWindow are inside the 30-day pre-expiration window.
	ExpiryWindow time.Time
}

// NewClock builds a clock anchored at the current time.
func NewClock() Clock {
	return ClockAt(time.Now().UTC())
}

// ClockAt builds a clock anchored at an arbitrary instant. Backfill runs use
// this to shift the expiration boundary to the historical "as of" date.
func ClockAt(now time.Time) Clock {
	return Clock{
		Now:          now,
		YearAgo:      now.AddDate(0, 0, -365),
		ExpiryWindow: now.AddDate(0, 0, -335),
	}
}

// Expired reports whether a prescription effective date is past the 365-day
// boundary.
func (c Clock) Expired(effective time.Time) bool {
	return effective.Before(c.YearAgo)
}

// NearingExpiry reports whether a prescription effective date is inside the
// 335–365 day pre-expiration window.
func (c Clock) NearingExpiry(effective time.Time) bool {
	return !c.Expired(effective) && effective.Before(c.ExpiryWindow)
}
