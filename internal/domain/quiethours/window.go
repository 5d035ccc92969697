// Package quiethours computes when a reminder may be sent given a daily blackout window.
package quiethours

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) sinceMidnight() time.Duration {
	return time.Duration(c.Hour)*time.Hour + time.Duration(c.Minute)*time.Minute
}

// Window is a daily quiet interval [Start, End) in Location. When Start is later
// than End the window crosses midnight. Start == End means no quiet hours.
type Window struct {
	Start    Clock
	End      Clock
	Location *time.Location
}

// New parses start and end ("HH:MM") into a Window evaluated in loc.
func New(start, end string, loc *time.Location) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("quiet start: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("quiet end: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return Window{Start: s, End: e, Location: loc}, nil
}

func (w Window) loc() *time.Location {
	if w.Location == nil {
		return time.Local
	}
	return w.Location
}

// Contains reports whether t falls inside the quiet window.
func (w Window) Contains(t time.Time) bool {
	start, end := w.Start.sinceMidnight(), w.End.sinceMidnight()
	if start == end {
		return false
	}
	local := t.In(w.loc())
	tod := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	if start < end {
		return tod >= start && tod < end
	}
	return tod >= start || tod < end
}

// Adjust returns the next occurrence of End strictly after candidate when candidate
// is inside the window, and candidate unchanged otherwise.
func (w Window) Adjust(candidate time.Time) time.Time {
	if !w.Contains(candidate) {
		return candidate
	}
	local := candidate.In(w.loc())
	y, m, d := local.Date()
	next := time.Date(y, m, d, w.End.Hour, w.End.Minute, 0, 0, w.loc())
	if !next.After(local) {
		next = time.Date(y, m, d+1, w.End.Hour, w.End.Minute, 0, 0, w.loc())
	}
	return next.In(candidate.Location())
}

// Adjust is the free-function form of Window.Adjust.
func Adjust(candidate time.Time, quietStart, quietEnd Clock, loc *time.Location) time.Time {
	return Window{Start: quietStart, End: quietEnd, Location: loc}.Adjust(candidate)
}
