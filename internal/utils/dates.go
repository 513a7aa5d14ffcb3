package utils

import (
	"fmt"
	"math"
	"time"
)

// Inspection dates are calendar dates with no time component. They are stored
// at UTC midnight and interpreted in the marketplace timezone when compared
// against "now".

// ParseDate parses a "2006-01-02" calendar date into its UTC-midnight form.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// DateOnly truncates t to its calendar date at UTC midnight.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysUntil returns the whole-day difference between the calendar date and
// "now", both taken at midnight in loc. Negative means the date has passed.
func DaysUntil(date, now time.Time, loc *time.Location) int {
	y, m, d := date.UTC().Date()
	target := time.Date(y, m, d, 0, 0, 0, 0, loc)
	ny, nm, nd := now.In(loc).Date()
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, loc)
	// Rounding absorbs DST-shifted days.
	return int(math.Round(target.Sub(today).Hours() / 24))
}

// CountdownTier buckets a day count for badge rendering.
type CountdownTier string

const (
	TierOverdue  CountdownTier = "overdue"
	TierToday    CountdownTier = "today"
	TierTomorrow CountdownTier = "tomorrow"
	TierSoon     CountdownTier = "soon"  // 2..7 days out
	TierLater    CountdownTier = "later" // more than a week out
)

// Countdown is the badge-ready classification of a day count.
type Countdown struct {
	Days  int           `json:"days"`
	Tier  CountdownTier `json:"tier"`
	Label string        `json:"label"`
}

// ClassifyCountdown maps a whole-day difference onto its display tier.
func ClassifyCountdown(days int) Countdown {
	c := Countdown{Days: days}
	switch {
	case days < 0:
		c.Tier = TierOverdue
		c.Label = "Overdue"
	case days == 0:
		c.Tier = TierToday
		c.Label = "Today"
	case days == 1:
		c.Tier = TierTomorrow
		c.Label = "Tomorrow"
	case days <= 7:
		c.Tier = TierSoon
		c.Label = fmt.Sprintf("In %d days", days)
	default:
		c.Tier = TierLater
		c.Label = fmt.Sprintf("In %d days", days)
	}
	return c
}
