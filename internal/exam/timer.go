package exam

import (
	"fmt"
	"time"
)

// UrgentThreshold is when the remaining time is shown as a warning.
const UrgentThreshold = 10 * time.Minute

// TimeLeft is the backend's remaining-time snapshot in seconds; nil means no limit.
type TimeLeft struct {
	TimeLeft *int `json:"time_left"`
}

func (t TimeLeft) Unlimited() bool { return t.TimeLeft == nil }

// Exhausted is true when the attempt has a limit and no time remains.
func (t TimeLeft) Exhausted() bool { return t.TimeLeft != nil && *t.TimeLeft <= 0 }

// Countdown is a deadline fixed from one TimeLeft snapshot.
type Countdown struct {
	Deadline  time.Time
	Unlimited bool
}

func NewCountdown(t TimeLeft, now time.Time) Countdown {
	if t.TimeLeft == nil {
		return Countdown{Unlimited: true}
	}
	secs := *t.TimeLeft
	if secs < 0 {
		secs = 0
	}
	return Countdown{Deadline: now.Add(time.Duration(secs) * time.Second)}
}

func (c Countdown) Remaining(now time.Time) time.Duration {
	if c.Unlimited {
		return 0
	}
	d := c.Deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d.Truncate(time.Second)
}

func (c Countdown) Expired(now time.Time) bool {
	return !c.Unlimited && !now.Before(c.Deadline)
}

func (c Countdown) Urgent(now time.Time) bool {
	return !c.Unlimited && c.Remaining(now) <= UrgentThreshold
}

// FormatHMS renders d as HH:MM:SS. Negative durations render as 00:00:00.
func FormatHMS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s%3600/60, s%60)
}
