package backend

import (
	"slices"
	"time"

	"github.com/benjamonnguyen/breathe-go"
)

type civilDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time, loc *time.Location) civilDate {
	y, m, d := t.In(loc).Date()
	return civilDate{y, m, d}
}

func (d civilDate) time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

func (d civilDate) prev() civilDate {
	return dateOf(d.time().AddDate(0, 0, -1), time.UTC)
}

func (d civilDate) String() string {
	return d.time().Format(time.DateOnly)
}

// ComputeStreak counts consecutive days with at least one completed session.
// A streak that includes today has one day before it breaks; one that ended
// yesterday is still alive but breaks unless the user practices today.
func ComputeStreak(sessions []breathe.BreathingSession, now time.Time, loc *time.Location) breathe.StreakInfo {
	practiced := make(map[civilDate]struct{})
	for _, s := range sessions {
		if !s.Completed || s.CompletedAt == nil {
			continue
		}
		practiced[dateOf(*s.CompletedAt, loc)] = struct{}{}
	}
	if len(practiced) == 0 {
		return breathe.StreakInfo{}
	}

	days := make([]time.Time, 0, len(practiced))
	for d := range practiced {
		days = append(days, d.time())
	}
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })

	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i-1].AddDate(0, 0, 1).Equal(days[i]) {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
	}

	today := dateOf(now, loc)
	info := breathe.StreakInfo{LongestStreak: longest}
	cursor := today
	if _, ok := practiced[today]; ok {
		info.DaysUntilBreak = 1
	} else if _, ok := practiced[today.prev()]; ok {
		cursor = today.prev()
	} else {
		return info
	}
	for {
		if _, ok := practiced[cursor]; !ok {
			break
		}
		info.CurrentStreak++
		cursor = cursor.prev()
	}
	return info
}
