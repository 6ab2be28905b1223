package breathe

import (
	"fmt"
	"strings"
	"time"
)

type Mood string

const (
	MoodVeryLow Mood = "very_low"
	MoodLow     Mood = "low"
	MoodNeutral Mood = "neutral"
	MoodGood    Mood = "good"
	MoodGreat   Mood = "great"
)

func (m Mood) IsValid() bool {
	switch m {
	case MoodVeryLow, MoodLow, MoodNeutral, MoodGood, MoodGreat:
		return true
	default:
		return false
	}
}

// ParseMood accepts an empty string as "no mood given".
func ParseMood(input string) (Mood, error) {
	s := strings.TrimSpace(strings.ToLower(input))
	if s == "" {
		return "", nil
	}
	m := Mood(strings.ReplaceAll(s, "-", "_"))
	if !m.IsValid() {
		return "", fmt.Errorf("invalid mood: %q", input)
	}
	return m, nil
}

// StartSessionRequest is the body of POST /breathing/sessions.
type StartSessionRequest struct {
	TechniqueID           TechniqueID `json:"technique_id"`
	TargetDurationSeconds int         `json:"target_duration_seconds"`
	VoiceGuidanceEnabled  bool        `json:"voice_guidance_enabled"`
	BackgroundSound       string      `json:"background_sound"`
	HapticFeedbackEnabled bool        `json:"haptic_feedback_enabled"`
	MoodBefore            *Mood       `json:"mood_before,omitempty"`
}

// CompleteSessionRequest is the body of POST /breathing/sessions/{id}/complete.
type CompleteSessionRequest struct {
	DurationSeconds     int   `json:"duration_seconds"`
	CyclesCompleted     int   `json:"cycles_completed"`
	Completed           bool  `json:"completed"`
	CompletedPercentage int   `json:"completed_percentage"`
	MoodAfter           *Mood `json:"mood_after,omitempty"`
}

type BreathingSession struct {
	ID                    SessionID   `json:"id"`
	TechniqueID           TechniqueID `json:"technique_id"`
	TargetDurationSeconds int         `json:"target_duration_seconds"`
	DurationSeconds       int         `json:"duration_seconds"`
	CyclesCompleted       int         `json:"cycles_completed"`
	Completed             bool        `json:"completed"`
	CompletedPercentage   int         `json:"completed_percentage"`
	MoodBefore            *Mood       `json:"mood_before,omitempty"`
	MoodAfter             *Mood       `json:"mood_after,omitempty"`
	VoiceGuidanceEnabled  bool        `json:"voice_guidance_enabled"`
	HapticFeedbackEnabled bool        `json:"haptic_feedback_enabled"`
	BackgroundSound       string      `json:"background_sound"`
	StartedAt             time.Time   `json:"started_at"`
	CompletedAt           *time.Time  `json:"completed_at,omitempty"`
}

type CompleteSessionResponse struct {
	Session   BreathingSession `json:"session"`
	NewStreak int              `json:"new_streak"`
}

type StreakInfo struct {
	CurrentStreak  int `json:"current_streak"`
	LongestStreak  int `json:"longest_streak"`
	DaysUntilBreak int `json:"days_until_break"`
}

type Stats struct {
	TotalSessions          int         `json:"total_sessions"`
	CompletedSessions      int         `json:"completed_sessions"`
	TotalMinutes           int         `json:"total_minutes"`
	AverageDurationSeconds float64     `json:"average_duration_seconds"`
	CompletionRate         float64     `json:"completion_rate"`
	FavoriteTechniqueID    TechniqueID `json:"favorite_technique_id,omitempty"`
	CurrentStreak          int         `json:"current_streak"`
	LongestStreak          int         `json:"longest_streak"`
}

type TechniqueUsageStats struct {
	TechniqueID       TechniqueID `json:"technique_id"`
	TechniqueName     string      `json:"technique_name"`
	SessionCount      int         `json:"session_count"`
	TotalSeconds      int         `json:"total_seconds"`
	AverageCompletion float64     `json:"average_completion"`
}

type CalendarDay struct {
	Date         string `json:"date"`
	SessionCount int    `json:"session_count"`
	TotalSeconds int    `json:"total_seconds"`
	Completed    bool   `json:"completed"`
}

type WidgetData struct {
	TodaySessions int             `json:"today_sessions"`
	TodayMinutes  int             `json:"today_minutes"`
	Streak        StreakInfo      `json:"streak"`
	Suggested     *Recommendation `json:"suggested,omitempty"`
}

type Recommendation struct {
	Technique       Technique `json:"technique"`
	DurationSeconds int       `json:"duration_seconds"`
	Reason          string    `json:"reason"`
}
