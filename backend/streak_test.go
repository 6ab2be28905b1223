package backend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/benjamonnguyen/breathe-go"
)

func completedOn(day int, completed bool) breathe.BreathingSession {
	at := time.Date(2026, time.October, day, 20, 0, 0, 0, time.UTC)
	return breathe.BreathingSession{
		TechniqueID:         "box",
		DurationSeconds:     300,
		Completed:           completed,
		CompletedPercentage: map[bool]int{true: 100, false: 40}[completed],
		CompletedAt:         &at,
	}
}

func TestComputeStreak(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		sessions []breathe.BreathingSession
		want     breathe.StreakInfo
	}{
		{
			name: "no sessions",
			want: breathe.StreakInfo{},
		},
		{
			name:     "practiced today",
			sessions: []breathe.BreathingSession{completedOn(14, true), completedOn(15, true), completedOn(16, true)},
			want:     breathe.StreakInfo{CurrentStreak: 3, LongestStreak: 3, DaysUntilBreak: 1},
		},
		{
			name:     "at risk today",
			sessions: []breathe.BreathingSession{completedOn(14, true), completedOn(15, true)},
			want:     breathe.StreakInfo{CurrentStreak: 2, LongestStreak: 2, DaysUntilBreak: 0},
		},
		{
			name:     "broken",
			sessions: []breathe.BreathingSession{completedOn(10, true), completedOn(11, true), completedOn(12, true), completedOn(14, true)},
			want:     breathe.StreakInfo{CurrentStreak: 0, LongestStreak: 3, DaysUntilBreak: 0},
		},
		{
			name:     "partial sessions do not count",
			sessions: []breathe.BreathingSession{completedOn(15, true), completedOn(16, false)},
			want:     breathe.StreakInfo{CurrentStreak: 1, LongestStreak: 1, DaysUntilBreak: 0},
		},
		{
			name:     "several sessions on one day",
			sessions: []breathe.BreathingSession{completedOn(16, true), completedOn(16, true)},
			want:     breathe.StreakInfo{CurrentStreak: 1, LongestStreak: 1, DaysUntilBreak: 1},
		},
		{
			name:     "unfinished sessions are ignored",
			sessions: []breathe.BreathingSession{{TechniqueID: "box", Completed: true}},
			want:     breathe.StreakInfo{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ComputeStreak(tc.sessions, now, time.UTC))
		})
	}
}

func TestComputeStreak_AcrossMonthBoundary(t *testing.T) {
	t.Parallel()

	day := func(m time.Month, d int) breathe.BreathingSession {
		at := time.Date(2026, m, d, 8, 0, 0, 0, time.UTC)
		return breathe.BreathingSession{Completed: true, CompletedAt: &at}
	}
	now := time.Date(2026, time.November, 1, 9, 0, 0, 0, time.UTC)
	got := ComputeStreak([]breathe.BreathingSession{day(time.October, 30), day(time.October, 31), day(time.November, 1)}, now, time.UTC)
	assert.Equal(t, breathe.StreakInfo{CurrentStreak: 3, LongestStreak: 3, DaysUntilBreak: 1}, got)
}

func TestComputeStats(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.October, 16, 21, 0, 0, 0, time.UTC)
	sessions := []breathe.BreathingSession{
		completedOn(15, true),
		completedOn(16, true),
		completedOn(16, false),
		{TechniqueID: "coherent"}, // started, never completed
	}
	sessions[2].TechniqueID = "coherent"
	sessions[2].DurationSeconds = 240

	got := ComputeStats(sessions, now, time.UTC)
	assert.Equal(t, 3, got.TotalSessions)
	assert.Equal(t, 2, got.CompletedSessions)
	assert.Equal(t, 14, got.TotalMinutes)
	assert.Equal(t, 280.0, got.AverageDurationSeconds)
	assert.Equal(t, 0.67, got.CompletionRate)
	assert.Equal(t, breathe.TechniqueID("box"), got.FavoriteTechniqueID)
	assert.Equal(t, 2, got.CurrentStreak)

	assert.Equal(t, breathe.Stats{}, ComputeStats(nil, now, time.UTC))
}

func TestComputeUsage(t *testing.T) {
	t.Parallel()

	sessions := []breathe.BreathingSession{completedOn(15, true), completedOn(16, false)}
	got := ComputeUsage(sessions, map[breathe.TechniqueID]string{"box": "Box Breathing"})
	assert.Equal(t, []breathe.TechniqueUsageStats{{
		TechniqueID:       "box",
		TechniqueName:     "Box Breathing",
		SessionCount:      2,
		TotalSeconds:      600,
		AverageCompletion: 70,
	}}, got)
}

func TestPickRecommendation(t *testing.T) {
	t.Parallel()

	for _, tech := range []breathe.TechniqueID{
		pickRecommendation(breathe.MoodGreat, "").techniqueID,
		pickRecommendation("", breathe.Evening).techniqueID,
		pickRecommendation("", "").techniqueID,
	} {
		found := false
		for _, sys := range SystemTechniques {
			found = found || sys.ID == tech
		}
		assert.True(t, found, "recommended technique %s is seeded", tech)
	}
	assert.Equal(t, breathe.TechniqueID("calming"), pickRecommendation(breathe.MoodVeryLow, breathe.Morning).techniqueID)
}
