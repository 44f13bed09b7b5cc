package pacing

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(hhmm string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", hhmm, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

func timeOfDayOf(now time.Time) TimeOfDay {
	return TimeOfDay{Hour: now.Hour(), Minute: now.Minute()}
}

// Window is a daily [From, To) range. When To is earlier than From the window
// spans midnight. From == To is an empty window.
type Window struct {
	From TimeOfDay
	To   TimeOfDay
}

func ParseWindow(from, to string) (Window, error) {
	f, err := ParseTimeOfDay(from)
	if err != nil {
		return Window{}, err
	}
	t, err := ParseTimeOfDay(to)
	if err != nil {
		return Window{}, err
	}
	return Window{From: f, To: t}, nil
}

func (w Window) Contains(now time.Time) bool {
	return WithinSchedule(w.From, w.To, now)
}

// WithinSchedule reports whether the time of day of now falls in [from, to).
func WithinSchedule(from, to TimeOfDay, now time.Time) bool {
	cur := timeOfDayOf(now).minutes()
	f, t := from.minutes(), to.minutes()
	if t < f {
		return cur >= f || cur < t
	}
	return cur >= f && cur < t
}
