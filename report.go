package breathe

import (
	"fmt"
	"time"
)

type Headline string

const (
	HeadlineCompleted Headline = "completed"
	HeadlinePartial   Headline = "partial"
)

type CompletionReport struct {
	SessionID    SessionID
	Headline     Headline
	Streak       int
	DurationText string
	Cycles       int
	Percentage   int
}

// Report turns the backend's complete response into the completion framing.
func Report(resp CompleteSessionResponse) CompletionReport {
	headline := HeadlinePartial
	if resp.Session.Completed {
		headline = HeadlineCompleted
	}
	return CompletionReport{
		SessionID:    resp.Session.ID,
		Headline:     headline,
		Streak:       resp.NewStreak,
		DurationText: DurationText(resp.Session.DurationSeconds),
		Cycles:       resp.Session.CyclesCompleted,
		Percentage:   resp.Session.CompletedPercentage,
	}
}

// DurationText formats whole seconds as "5 min", "2 min 30 sec" or "45 sec".
func DurationText(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds) * time.Second
	mins := int(d / time.Minute)
	secs := int((d % time.Minute) / time.Second)
	switch {
	case mins == 0:
		return fmt.Sprintf("%d sec", secs)
	case secs == 0:
		return fmt.Sprintf("%d min", mins)
	default:
		return fmt.Sprintf("%d min %d sec", mins, secs)
	}
}
