package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// Clock is a time of day with minute resolution, stored as minutes after
// midnight. Arithmetic wraps around midnight.
type Clock int

// NewClock builds a Clock from hour and minute.
func NewClock(hour, minute int) Clock {
	return wrap(hour*60 + minute)
}

// ClockOf takes the wall-clock part of t in t's own location.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute())
}

// ParseClock accepts "HH:MM" or "HH:MM:SS"; seconds are dropped.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("clock: invalid value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("clock: invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock: invalid minute in %q", s)
	}
	return NewClock(h, m), nil
}

// MustClock is ParseClock for literals known to be valid.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func wrap(m int) Clock {
	m %= minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return Clock(m)
}

func (c Clock) Hour() int    { return int(c) / 60 }
func (c Clock) Minute() int  { return int(c) % 60 }
func (c Clock) Minutes() int { return int(c) }

// Add moves the clock by d (truncated to minutes), wrapping at midnight.
func (c Clock) Add(d time.Duration) Clock {
	return wrap(int(c) + int(d/time.Minute))
}

// Sub returns c-o as a duration; no wrapping is applied.
func (c Clock) Sub(o Clock) time.Duration {
	return time.Duration(int(c)-int(o)) * time.Minute
}

func (c Clock) Before(o Clock) bool { return c < o }
func (c Clock) After(o Clock) bool  { return c > o }

// On places the clock on the calendar date of day, in day's location.
func (c Clock) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, day.Location())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// AbsDiff returns |a-b|.
func AbsDiff(a, b Clock) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
