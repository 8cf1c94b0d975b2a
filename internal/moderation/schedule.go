package moderation

import (
	"fmt"
	"strings"
	"time"
)

// ScheduleLayout is the format administrators type publish times in.
const ScheduleLayout = "02.01.2006 15:04"

// Schedule is either an immediate publication or a publish time.
type Schedule struct {
	Now bool
	At  time.Time
}

func PublishNow() Schedule { return Schedule{Now: true} }

func PublishAt(t time.Time) Schedule { return Schedule{At: t} }

// ParseSchedule reads "now" (or "сейчас") or a DD.MM.YYYY HH:MM time in loc.
// Whether the time lies in the future is checked by SetSchedule.
func ParseSchedule(input string, loc *time.Location) (Schedule, error) {
	input = strings.TrimSpace(input)
	switch strings.ToLower(input) {
	case "now", "сейчас":
		return PublishNow(), nil
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(ScheduleLayout, input, loc)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: expected DD.MM.YYYY HH:MM or now, got %q", ErrInvalidSchedule, input)
	}
	return PublishAt(t), nil
}
