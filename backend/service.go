package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/benjamonnguyen/breathe-go"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type Service struct {
	store     *InMemoryStore
	presets   breathe.DurationPresets
	threshold int
	loc       *time.Location
	now       func() time.Time
	l         *log.Logger
}

func NewService(store *InMemoryStore, cfg breathe.BackendConfig, logger *log.Logger) *Service {
	presets := cfg.DurationPresets
	if len(presets) == 0 {
		presets = breathe.DefaultDurationPresets
	}
	return &Service{
		store:     store,
		presets:   presets,
		threshold: cfg.CompletionThreshold,
		loc:       time.UTC,
		now:       time.Now,
		l:         logger,
	}
}

func (s *Service) ListTechniques(ctx context.Context, userID string) []breathe.Technique {
	return s.store.ListTechniques(ctx, userID)
}

func (s *Service) CreateTechnique(ctx context.Context, userID string, in breathe.TechniqueInput) (breathe.Technique, error) {
	t := in.Technique("")
	if err := validateTechnique(t); err != nil {
		return breathe.Technique{}, err
	}
	return s.store.InsertTechnique(ctx, userID, t), nil
}

func (s *Service) UpdateTechnique(ctx context.Context, userID string, id breathe.TechniqueID, in breathe.TechniqueInput) (breathe.Technique, error) {
	t := in.Technique(id)
	if err := validateTechnique(t); err != nil {
		return breathe.Technique{}, err
	}
	return s.store.UpdateTechnique(ctx, userID, t)
}

func (s *Service) DeleteTechnique(ctx context.Context, userID string, id breathe.TechniqueID) error {
	return s.store.DeleteTechnique(ctx, userID, id)
}

func validateTechnique(t breathe.Technique) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if t.DefaultDurationSeconds < 0 {
		return fmt.Errorf("%w: default duration must be >= 0", ErrInvalidInput)
	}
	return nil
}

func (s *Service) ListFavorites(ctx context.Context, userID string) []breathe.Technique {
	return s.store.ListFavorites(ctx, userID)
}

func (s *Service) SetFavorite(ctx context.Context, userID string, id breathe.TechniqueID, favorite bool) error {
	return s.store.SetFavorite(ctx, userID, id, favorite)
}

func (s *Service) StartSession(ctx context.Context, userID string, req breathe.StartSessionRequest) (breathe.BreathingSession, error) {
	if req.TechniqueID == "" {
		return breathe.BreathingSession{}, fmt.Errorf("%w: technique_id is required", ErrInvalidInput)
	}
	if !s.presets.Contains(req.TargetDurationSeconds) {
		return breathe.BreathingSession{}, fmt.Errorf("%w: %d not in [%s]", ErrUnsupportedTarget, req.TargetDurationSeconds, s.presets)
	}
	if req.MoodBefore != nil && !req.MoodBefore.IsValid() {
		return breathe.BreathingSession{}, fmt.Errorf("%w: mood_before %q", ErrInvalidInput, *req.MoodBefore)
	}
	if _, err := s.store.GetTechnique(ctx, userID, req.TechniqueID); err != nil {
		return breathe.BreathingSession{}, err
	}

	session := s.store.InsertSession(ctx, userID, breathe.BreathingSession{
		TechniqueID:           req.TechniqueID,
		TargetDurationSeconds: req.TargetDurationSeconds,
		MoodBefore:            req.MoodBefore,
		VoiceGuidanceEnabled:  req.VoiceGuidanceEnabled,
		HapticFeedbackEnabled: req.HapticFeedbackEnabled,
		BackgroundSound:       req.BackgroundSound,
		StartedAt:             s.now().UTC(),
	})
	s.l.Debug("started session", "userID", userID, "sessionID", session.ID, "technique", session.TechniqueID)
	return session, nil
}

// CompleteSession finalizes a session exactly once. The reported duration and
// cycles are taken as given; the percentage and completed flag are recomputed.
func (s *Service) CompleteSession(ctx context.Context, userID string, id breathe.SessionID, req breathe.CompleteSessionRequest) (breathe.CompleteSessionResponse, error) {
	if req.DurationSeconds < 0 || req.CyclesCompleted < 0 {
		return breathe.CompleteSessionResponse{}, fmt.Errorf("%w: negative duration or cycles", ErrInvalidInput)
	}
	if req.MoodAfter != nil && !req.MoodAfter.IsValid() {
		return breathe.CompleteSessionResponse{}, fmt.Errorf("%w: mood_after %q", ErrInvalidInput, *req.MoodAfter)
	}

	now := s.now().UTC()
	session, err := s.store.UpdateSession(ctx, userID, id, func(b *breathe.BreathingSession) error {
		if b.CompletedAt != nil {
			return ErrAlreadyCompleted
		}
		pct := breathe.CompletedPercentage(req.DurationSeconds, b.TargetDurationSeconds)
		if pct != req.CompletedPercentage {
			s.l.Warn("client percentage differs", "sessionID", b.ID, "reported", req.CompletedPercentage, "computed", pct)
		}
		b.DurationSeconds = req.DurationSeconds
		b.CyclesCompleted = req.CyclesCompleted
		b.CompletedPercentage = pct
		b.Completed = breathe.IsCompleted(pct, s.threshold)
		b.MoodAfter = req.MoodAfter
		b.CompletedAt = &now
		return nil
	})
	if err != nil {
		return breathe.CompleteSessionResponse{}, err
	}

	streak := ComputeStreak(s.store.ListSessions(ctx, userID), now, s.loc)
	return breathe.CompleteSessionResponse{Session: session, NewStreak: streak.CurrentStreak}, nil
}

func (s *Service) ListSessions(ctx context.Context, userID string, limit int) []breathe.BreathingSession {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	sessions := s.store.ListSessions(ctx, userID)
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions
}

func (s *Service) Streak(ctx context.Context, userID string) breathe.StreakInfo {
	return ComputeStreak(s.store.ListSessions(ctx, userID), s.now(), s.loc)
}

func (s *Service) Stats(ctx context.Context, userID string) breathe.Stats {
	return ComputeStats(s.store.ListSessions(ctx, userID), s.now(), s.loc)
}

func (s *Service) Usage(ctx context.Context, userID string) []breathe.TechniqueUsageStats {
	names := make(map[breathe.TechniqueID]string)
	for _, t := range s.store.ListTechniques(ctx, userID) {
		names[t.ID] = t.Name
	}
	return ComputeUsage(s.store.ListSessions(ctx, userID), names)
}

func (s *Service) Calendar(ctx context.Context, userID string, year int, month time.Month) ([]breathe.CalendarDay, error) {
	if month < time.January || month > time.December || year < 1 {
		return nil, fmt.Errorf("%w: year/month", ErrInvalidInput)
	}
	return ComputeCalendar(s.store.ListSessions(ctx, userID), year, month, s.loc), nil
}

func (s *Service) Widget(ctx context.Context, userID string) breathe.WidgetData {
	now := s.now()
	sessions := s.store.ListSessions(ctx, userID)
	count, minutes := ComputeToday(sessions, now, s.loc)
	widget := breathe.WidgetData{
		TodaySessions: count,
		TodayMinutes:  minutes,
		Streak:        ComputeStreak(sessions, now, s.loc),
	}
	if rec, err := s.Recommend(ctx, userID, "", breathe.TimeOfDayAt(now.In(s.loc))); err == nil {
		widget.Suggested = &rec
	}
	return widget
}

func (s *Service) Recommend(ctx context.Context, userID string, mood breathe.Mood, tod breathe.TimeOfDay) (breathe.Recommendation, error) {
	if tod == "" {
		tod = breathe.TimeOfDayAt(s.now().In(s.loc))
	}
	pick := pickRecommendation(mood, tod)
	technique, err := s.store.GetTechnique(ctx, userID, pick.techniqueID)
	if err != nil {
		return breathe.Recommendation{}, fmt.Errorf("recommended technique %s: %w", pick.techniqueID, err)
	}
	return breathe.Recommendation{
		Technique:       technique,
		DurationSeconds: s.presets.Nearest(pick.durationSeconds),
		Reason:          pick.reason,
	}, nil
}
