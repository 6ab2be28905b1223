// Package models helps control struct access and mutation
package models

import (
	"fmt"
	"time"

	"github.com/benjamonnguyen/breathe-go"
)

type Session struct {
	ID        breathe.SessionID
	Technique breathe.Technique
	Settings  SessionSettings
	record    breathe.SessionRecord

	lastTickAt time.Time
}

type SessionSettings struct {
	Target              time.Duration
	VoiceGuidance       bool
	HapticFeedback      bool
	BackgroundSound     string
	MoodBefore          breathe.Mood
	CompletionThreshold int
}

// TickResult describes what changed during one Tick.
type TickResult struct {
	PhaseChanged   bool
	CycleCompleted bool
	Finished       bool
}

func NewSession(id breathe.SessionID, technique breathe.Technique, settings SessionSettings) (Session, error) {
	if id == "" {
		return Session{}, fmt.Errorf("missing session id")
	}
	if err := technique.Validate(); err != nil {
		return Session{}, err
	}
	if settings.Target < time.Second {
		return Session{}, fmt.Errorf("target duration must be at least 1s: %w", breathe.ErrInvalidDuration)
	}
	if settings.CompletionThreshold <= 0 {
		settings.CompletionThreshold = breathe.DefaultCompletionThreshold
	}
	return Session{
		ID:        id,
		Technique: technique,
		Settings:  settings,
		record: breathe.SessionRecord{
			TechniqueID: technique.ID,
			Target:      settings.Target,
			Status:      breathe.SessionPending,
			MoodBefore:  settings.MoodBefore,
		},
	}, nil
}

func (s Session) Record() breathe.SessionRecord {
	return s.record
}

func (s Session) Status() breathe.SessionStatus {
	return s.record.Status
}

func (s Session) Elapsed() time.Duration {
	return s.record.Elapsed
}

func (s Session) Remaining() time.Duration {
	return s.Settings.Target - s.record.Elapsed
}

func (s Session) Cycles() int {
	return s.record.Cycles
}

// DurationSeconds is the elapsed practice time in whole seconds.
func (s Session) DurationSeconds() int {
	return int(s.record.Elapsed / time.Second)
}

func (s Session) TargetSeconds() int {
	return int(s.Settings.Target / time.Second)
}

func (s Session) Percentage() int {
	return breathe.CompletedPercentage(s.DurationSeconds(), s.TargetSeconds())
}

// CurrentPhase returns the phase the cursor is in and its index in the pattern.
func (s Session) CurrentPhase() (breathe.Phase, int) {
	i, _ := s.phaseCursor()
	return s.Technique.Phases[i], i
}

// PhaseRemaining is the time left in the current phase.
func (s Session) PhaseRemaining() time.Duration {
	i, into := s.phaseCursor()
	return s.Technique.Phases[i].Duration() - into
}

func (s Session) phaseCursor() (int, time.Duration) {
	cycle := s.Technique.CycleDuration()
	pos := s.record.Elapsed % cycle
	for i, p := range s.Technique.Phases {
		if pos < p.Duration() {
			return i, pos
		}
		pos -= p.Duration()
	}
	return len(s.Technique.Phases) - 1, 0
}

func (s *Session) Start(now time.Time) error {
	if s.record.Status != breathe.SessionPending {
		return s.invalid("start")
	}
	s.record.Status = breathe.SessionRunning
	s.record.StartedAt = now
	s.lastTickAt = now
	return nil
}

// Tick accumulates the wall-clock time since the previous tick. Time past the
// target is dropped and reaching the target moves the session to Finishing.
func (s *Session) Tick(now time.Time) TickResult {
	if s.record.Status != breathe.SessionRunning {
		return TickResult{}
	}

	delta := now.Sub(s.lastTickAt)
	if delta < 0 {
		delta = 0
	}
	s.lastTickAt = now

	_, phaseBefore := s.CurrentPhase()
	cyclesBefore := s.record.Cycles

	s.record.Elapsed = min(s.Settings.Target, s.record.Elapsed+delta)
	s.record.Cycles = int(s.record.Elapsed / s.Technique.CycleDuration())

	_, phaseAfter := s.CurrentPhase()
	res := TickResult{
		PhaseChanged:   phaseAfter != phaseBefore || s.record.Cycles != cyclesBefore,
		CycleCompleted: s.record.Cycles > cyclesBefore,
	}

	if s.record.Elapsed >= s.Settings.Target {
		s.finish(now)
		res.Finished = true
	}
	return res
}

func (s *Session) Pause(now time.Time) error {
	if s.record.Status != breathe.SessionRunning {
		return s.invalid("pause")
	}
	if res := s.Tick(now); res.Finished {
		return nil
	}
	s.record.Status = breathe.SessionPaused
	return nil
}

func (s *Session) Resume(now time.Time) error {
	if s.record.Status != breathe.SessionPaused {
		return s.invalid("resume")
	}
	s.record.Status = breathe.SessionRunning
	s.lastTickAt = now
	return nil
}

// Stop ends the run early (or on time) and moves the session to Finishing.
func (s *Session) Stop(now time.Time) error {
	switch s.record.Status {
	case breathe.SessionRunning:
		if res := s.Tick(now); res.Finished {
			return nil
		}
	case breathe.SessionPaused:
	default:
		return s.invalid("stop")
	}
	s.finish(now)
	return nil
}

// Cancel abandons a session that has not reached Finishing.
func (s *Session) Cancel(now time.Time) error {
	if !s.record.Status.IsActive() {
		return s.invalid("cancel")
	}
	if s.record.Status == breathe.SessionRunning {
		s.Tick(now)
	}
	s.record.Status = breathe.SessionAbandoned
	s.record.FinishedAt = now
	return nil
}

// Summary builds the body of the single "complete" call.
func (s Session) Summary(moodAfter breathe.Mood) (breathe.CompleteSessionRequest, error) {
	if s.record.Status != breathe.SessionFinishing {
		return breathe.CompleteSessionRequest{}, s.invalid("summarize")
	}
	req := breathe.CompleteSessionRequest{
		DurationSeconds:     s.DurationSeconds(),
		CyclesCompleted:     s.record.Cycles,
		Completed:           s.record.Completed,
		CompletedPercentage: s.record.Percentage,
	}
	if moodAfter != "" {
		req.MoodAfter = &moodAfter
	}
	return req, nil
}

// MarkCompleted records the backend's finalized session. Terminal.
func (s *Session) MarkCompleted(final breathe.BreathingSession) error {
	if s.record.Status != breathe.SessionFinishing {
		return s.invalid("complete")
	}
	s.record.Status = breathe.SessionCompleted
	s.record.Completed = final.Completed
	s.record.Percentage = final.CompletedPercentage
	if final.MoodAfter != nil {
		s.record.MoodAfter = *final.MoodAfter
	}
	if final.CompletedAt != nil {
		s.record.FinishedAt = *final.CompletedAt
	}
	return nil
}

func (s *Session) finish(now time.Time) {
	s.record.Status = breathe.SessionFinishing
	s.record.FinishedAt = now
	s.record.Percentage = s.Percentage()
	s.record.Completed = breathe.IsCompleted(s.record.Percentage, s.Settings.CompletionThreshold)
}

func (s Session) invalid(op string) error {
	return fmt.Errorf("cannot %s session %s in status %s: %w", op, s.ID, s.record.Status, breathe.ErrInvalidTransition)
}
