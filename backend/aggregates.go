package backend

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/benjamonnguyen/breathe-go"
)

// finished drops sessions that were started but never completed.
func finished(sessions []breathe.BreathingSession) []breathe.BreathingSession {
	out := make([]breathe.BreathingSession, 0, len(sessions))
	for _, s := range sessions {
		if s.CompletedAt != nil {
			out = append(out, s)
		}
	}
	return out
}

func durations(sessions []breathe.BreathingSession) stats.Float64Data {
	data := make(stats.Float64Data, 0, len(sessions))
	for _, s := range sessions {
		data = append(data, float64(s.DurationSeconds))
	}
	return data
}

func round2(v float64) float64 {
	r, err := stats.Round(v, 2)
	if err != nil {
		return v
	}
	return r
}

// ComputeStats aggregates the finished sessions of one user.
func ComputeStats(sessions []breathe.BreathingSession, now time.Time, loc *time.Location) breathe.Stats {
	done := finished(sessions)
	streak := ComputeStreak(done, now, loc)
	out := breathe.Stats{
		TotalSessions: len(done),
		CurrentStreak: streak.CurrentStreak,
		LongestStreak: streak.LongestStreak,
	}
	if len(done) == 0 {
		return out
	}

	counts := make(map[breathe.TechniqueID]int)
	for _, s := range done {
		if s.Completed {
			out.CompletedSessions++
		}
		counts[s.TechniqueID]++
	}

	data := durations(done)
	if total, err := data.Sum(); err == nil {
		out.TotalMinutes = int(total) / 60
	}
	if mean, err := data.Mean(); err == nil {
		out.AverageDurationSeconds = round2(mean)
	}
	out.CompletionRate = round2(float64(out.CompletedSessions) / float64(len(done)))
	out.FavoriteTechniqueID = mostUsed(counts)
	return out
}

// mostUsed breaks ties by technique id so the result is stable.
func mostUsed(counts map[breathe.TechniqueID]int) breathe.TechniqueID {
	var best breathe.TechniqueID
	for _, id := range slices.Sorted(maps.Keys(counts)) {
		if best == "" || counts[id] > counts[best] {
			best = id
		}
	}
	return best
}

// ComputeUsage groups finished sessions by technique, most used first.
func ComputeUsage(sessions []breathe.BreathingSession, names map[breathe.TechniqueID]string) []breathe.TechniqueUsageStats {
	grouped := make(map[breathe.TechniqueID][]breathe.BreathingSession)
	for _, s := range finished(sessions) {
		grouped[s.TechniqueID] = append(grouped[s.TechniqueID], s)
	}

	out := make([]breathe.TechniqueUsageStats, 0, len(grouped))
	for id, group := range grouped {
		usage := breathe.TechniqueUsageStats{
			TechniqueID:   id,
			TechniqueName: names[id],
			SessionCount:  len(group),
		}
		if total, err := durations(group).Sum(); err == nil {
			usage.TotalSeconds = int(total)
		}
		pcts := make(stats.Float64Data, 0, len(group))
		for _, s := range group {
			pcts = append(pcts, float64(s.CompletedPercentage))
		}
		if mean, err := pcts.Mean(); err == nil {
			usage.AverageCompletion = round2(mean)
		}
		out = append(out, usage)
	}
	slices.SortFunc(out, func(a, b breathe.TechniqueUsageStats) int {
		if c := cmp.Compare(b.SessionCount, a.SessionCount); c != 0 {
			return c
		}
		return cmp.Compare(a.TechniqueID, b.TechniqueID)
	})
	return out
}

// ComputeCalendar lists the days of the month that have finished sessions.
func ComputeCalendar(sessions []breathe.BreathingSession, year int, month time.Month, loc *time.Location) []breathe.CalendarDay {
	byDay := make(map[civilDate]*breathe.CalendarDay)
	for _, s := range finished(sessions) {
		d := dateOf(*s.CompletedAt, loc)
		if d.year != year || d.month != month {
			continue
		}
		day, ok := byDay[d]
		if !ok {
			day = &breathe.CalendarDay{Date: d.String()}
			byDay[d] = day
		}
		day.SessionCount++
		day.TotalSeconds += s.DurationSeconds
		day.Completed = day.Completed || s.Completed
	}

	out := make([]breathe.CalendarDay, 0, len(byDay))
	for _, day := range byDay {
		out = append(out, *day)
	}
	slices.SortFunc(out, func(a, b breathe.CalendarDay) int { return cmp.Compare(a.Date, b.Date) })
	return out
}

// ComputeToday counts today's finished sessions and whole minutes.
func ComputeToday(sessions []breathe.BreathingSession, now time.Time, loc *time.Location) (int, int) {
	today := dateOf(now, loc)
	var count, seconds int
	for _, s := range finished(sessions) {
		if dateOf(*s.CompletedAt, loc) == today {
			count++
			seconds += s.DurationSeconds
		}
	}
	return count, seconds / 60
}
