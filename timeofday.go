package breathe

import (
	"fmt"
	"strings"
	"time"
)

type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
	Night     TimeOfDay = "night"
)

func (t TimeOfDay) IsValid() bool {
	switch t {
	case Morning, Afternoon, Evening, Night:
		return true
	default:
		return false
	}
}

func ParseTimeOfDay(input string) (TimeOfDay, error) {
	s := strings.TrimSpace(strings.ToLower(input))
	if s == "" {
		return "", nil
	}
	t := TimeOfDay(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid time of day: %q", input)
	}
	return t, nil
}

// TimeOfDayAt buckets the local hour of t.
func TimeOfDayAt(t time.Time) TimeOfDay {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return Morning
	case h >= 12 && h < 17:
		return Afternoon
	case h >= 17 && h < 22:
		return Evening
	default:
		return Night
	}
}
