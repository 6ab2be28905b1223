package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thiht/transactor"
	"github.com/charmbracelet/log"

	"github.com/benjamonnguyen/breathe-go"
	"github.com/benjamonnguyen/breathe-go/cmd/breathe/models"
)

// BreathingAPI is the part of the backend the manager talks to.
type BreathingAPI interface {
	StartSession(context.Context, breathe.StartSessionRequest) (breathe.BreathingSession, error)
	CompleteSession(context.Context, breathe.SessionID, breathe.CompleteSessionRequest) (breathe.CompleteSessionResponse, error)
	GetStats(context.Context) (breathe.Stats, error)
	GetStreak(context.Context) (breathe.StreakInfo, error)
}

type startSessionRequest struct {
	technique       *breathe.Technique
	targetSeconds   int
	voiceGuidance   bool
	hapticFeedback  bool
	backgroundSound string
	moodBefore      breathe.Mood
}

type SessionManager interface {
	HasSession() bool
	CurrentSession() (models.Session, bool)
	StartSession(context.Context, startSessionRequest) (models.Session, error)
	PauseSession(context.Context) (models.Session, error)
	ResumeSession(context.Context) (models.Session, error)
	// StopSession ends the active session and reports it to the backend once.
	StopSession(ctx context.Context, moodAfter breathe.Mood) (breathe.CompletionReport, error)
	// AbandonSession ends a Running or Paused session without reporting it.
	// A session that already reached its target returns ErrSessionFinishing
	// and has to be stopped instead.
	AbandonSession(context.Context) (models.Session, error)
	LatestStats() (breathe.Stats, breathe.StreakInfo, bool)

	OnSessionUpdate(func(ctx context.Context, before, curr models.Session))
	RestorePendingSessions(context.Context) (int, error)
	Shutdown() error
}

var ErrManagerClosed = errors.New("session manager is shut down")

type sessionManager struct {
	api       BreathingAPI
	repo      breathe.SessionRepo
	tx        transactor.Transactor
	cfg       breathe.Config
	l         *log.Logger
	parentCtx context.Context
	now       func() time.Time

	mu         sync.Mutex
	session    *models.Session
	starting   bool
	closed     bool
	cancelLoop context.CancelFunc
	wg         sync.WaitGroup

	stats      breathe.Stats
	streak     breathe.StreakInfo
	statsKnown bool

	onSessionUpdate func(context.Context, models.Session, models.Session)
}

func NewSessionManager(
	ctx context.Context,
	api BreathingAPI,
	repo breathe.SessionRepo,
	tx transactor.Transactor,
	cfg breathe.Config,
	logger *log.Logger,
) SessionManager {
	if cfg.TickRate <= 0 {
		cfg.TickRate = 250 * time.Millisecond
	}
	if len(cfg.DurationPresets) == 0 {
		cfg.DurationPresets = breathe.DefaultDurationPresets
	}
	mgr := &sessionManager{
		api:       api,
		repo:      repo,
		tx:        tx,
		cfg:       cfg,
		l:         logger,
		parentCtx: ctx,
		now:       time.Now,
	}

	if count, err := mgr.RestorePendingSessions(ctx); err != nil {
		logger.Error("failed to restore pending sessions", "err", err)
	} else if count > 0 {
		logger.Info("marked unfinished sessions abandoned", "count", count)
	}
	return mgr
}

// RestorePendingSessions resolves journal rows left unfinished by a previous
// run. They are marked Abandoned and never reported to the backend.
func (m *sessionManager) RestorePendingSessions(ctx context.Context) (int, error) {
	var count int
	err := m.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		orphans, err := m.repo.GetSessionsByStatus(ctx,
			breathe.SessionPending,
			breathe.SessionRunning,
			breathe.SessionPaused,
			breathe.SessionFinishing,
		)
		if err != nil {
			return fmt.Errorf("failed to get unfinished sessions: %w", err)
		}

		for _, orphan := range orphans {
			record := orphan.SessionRecord
			record.Status = breathe.SessionAbandoned
			if record.FinishedAt.IsZero() {
				record.FinishedAt = orphan.UpdatedAt
			}
			if _, err := m.repo.UpdateSession(ctx, orphan.ID, record); err != nil {
				return fmt.Errorf("failed to abandon session %s: %w", orphan.ID, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (m *sessionManager) HasSession() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil || m.starting
}

func (m *sessionManager) CurrentSession() (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return models.Session{}, false
	}
	return *m.session, true
}

func (m *sessionManager) LatestStats() (breathe.Stats, breathe.StreakInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats, m.streak, m.statsKnown
}

func (m *sessionManager) OnSessionUpdate(handler func(context.Context, models.Session, models.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSessionUpdate = handler
}

func (m *sessionManager) StartSession(ctx context.Context, req startSessionRequest) (models.Session, error) {
	if req.technique == nil {
		return models.Session{}, breathe.ErrTechniqueRequired
	}
	if !m.cfg.DurationPresets.Contains(req.targetSeconds) {
		return models.Session{}, fmt.Errorf("%ds not in presets [%s]: %w", req.targetSeconds, m.cfg.DurationPresets, breathe.ErrInvalidDuration)
	}
	if err := req.technique.Validate(); err != nil {
		return models.Session{}, err
	}

	// reserve the single slot before the network call
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return models.Session{}, ErrManagerClosed
	}
	if m.session != nil || m.starting {
		m.mu.Unlock()
		return models.Session{}, breathe.ErrSessionActive
	}
	m.starting = true
	// Shutdown waits for an in-flight start
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()
	release := func() {
		m.mu.Lock()
		m.starting = false
		m.mu.Unlock()
	}

	apiReq := breathe.StartSessionRequest{
		TechniqueID:           req.technique.ID,
		TargetDurationSeconds: req.targetSeconds,
		VoiceGuidanceEnabled:  req.voiceGuidance,
		BackgroundSound:       req.backgroundSound,
		HapticFeedbackEnabled: req.hapticFeedback,
	}
	if req.moodBefore != "" {
		mood := req.moodBefore
		apiReq.MoodBefore = &mood
	}
	started, err := m.api.StartSession(ctx, apiReq)
	if err != nil {
		release()
		return models.Session{}, fmt.Errorf("failed to start session: %w", err)
	}

	session, err := models.NewSession(started.ID, *req.technique, models.SessionSettings{
		Target:              time.Duration(req.targetSeconds) * time.Second,
		VoiceGuidance:       req.voiceGuidance,
		HapticFeedback:      req.hapticFeedback,
		BackgroundSound:     req.backgroundSound,
		MoodBefore:          req.moodBefore,
		CompletionThreshold: m.cfg.CompletionThreshold,
	})
	if err != nil {
		release()
		return models.Session{}, fmt.Errorf("failed to start session: %w", err)
	}
	if err := session.Start(m.now()); err != nil {
		release()
		return models.Session{}, err
	}

	m.journal(ctx, session, true)

	m.mu.Lock()
	m.starting = false
	if m.closed {
		m.mu.Unlock()
		if err := session.Cancel(m.now()); err == nil {
			m.journal(ctx, session, false)
		}
		return models.Session{}, ErrManagerClosed
	}
	m.session = &session
	loopCtx, cancel := context.WithCancel(m.parentCtx)
	m.cancelLoop = cancel
	m.mu.Unlock()

	m.startUpdateLoop(loopCtx)
	m.l.Info("started session", "sessionID", session.ID, "technique", session.Technique.Name, "target", session.Settings.Target)
	return session, nil
}

func (m *sessionManager) PauseSession(ctx context.Context) (models.Session, error) {
	return m.transition(ctx, func(s *models.Session, now time.Time) error {
		return s.Pause(now)
	})
}

func (m *sessionManager) ResumeSession(ctx context.Context) (models.Session, error) {
	return m.transition(ctx, func(s *models.Session, now time.Time) error {
		return s.Resume(now)
	})
}

func (m *sessionManager) transition(ctx context.Context, fn func(*models.Session, time.Time) error) (models.Session, error) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return models.Session{}, breathe.ErrNoActiveSession
	}
	if err := fn(m.session, m.now()); err != nil {
		m.mu.Unlock()
		return models.Session{}, err
	}
	curr := *m.session
	m.mu.Unlock()

	m.journal(ctx, curr, false)
	return curr, nil
}

func (m *sessionManager) StopSession(ctx context.Context, moodAfter breathe.Mood) (breathe.CompletionReport, error) {
	m.mu.Lock()
	s := m.session
	if s == nil {
		m.mu.Unlock()
		return breathe.CompletionReport{}, breathe.ErrNoActiveSession
	}
	if s.Status() != breathe.SessionFinishing {
		if err := s.Stop(m.now()); err != nil {
			m.mu.Unlock()
			return breathe.CompletionReport{}, err
		}
	}
	summary, err := s.Summary(moodAfter)
	if err != nil {
		m.mu.Unlock()
		return breathe.CompletionReport{}, err
	}
	// detach so a second stop cannot send another complete
	m.detach()
	finishing := *s
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	m.journal(ctx, finishing, false)

	resp, err := m.api.CompleteSession(ctx, finishing.ID, summary)
	if err != nil {
		m.l.Error("failed to complete session", "sessionID", finishing.ID, "err", err)
		return breathe.CompletionReport{}, fmt.Errorf("failed to complete session: %w", err)
	}

	if err := finishing.MarkCompleted(resp.Session); err != nil {
		return breathe.CompletionReport{}, err
	}
	m.journal(ctx, finishing, false)

	report := breathe.Report(resp)
	m.l.Info("completed session", "sessionID", finishing.ID, "headline", report.Headline, "percentage", report.Percentage, "streak", report.Streak)

	m.refreshStats(ctx)
	return report, nil
}

func (m *sessionManager) AbandonSession(ctx context.Context) (models.Session, error) {
	m.mu.Lock()
	s := m.session
	if s == nil {
		m.mu.Unlock()
		return models.Session{}, breathe.ErrNoActiveSession
	}
	if s.Status() == breathe.SessionFinishing {
		m.mu.Unlock()
		return models.Session{}, breathe.ErrSessionFinishing
	}
	if err := s.Cancel(m.now()); err != nil {
		m.mu.Unlock()
		return models.Session{}, err
	}
	m.detach()
	abandoned := *s
	m.mu.Unlock()

	m.journal(ctx, abandoned, false)
	m.l.Info("abandoned session", "sessionID", abandoned.ID, "elapsed", abandoned.Elapsed())
	return abandoned, nil
}

// Shutdown abandons an active session and waits for the update loop and any
// in-flight start or stop to return. A session that already reached its
// target is completed without a mood instead.
func (m *sessionManager) Shutdown() error {
	m.mu.Lock()
	m.closed = true
	var (
		abandoned *models.Session
		finishing bool
	)
	if s := m.session; s != nil {
		if s.Status() == breathe.SessionFinishing {
			finishing = true
		} else {
			if err := s.Cancel(m.now()); err == nil {
				snapshot := *s
				abandoned = &snapshot
			}
			m.detach()
		}
	}
	m.mu.Unlock()

	var stopErr error
	if finishing {
		_, err := m.StopSession(context.WithoutCancel(m.parentCtx), "")
		if err != nil && !errors.Is(err, breathe.ErrNoActiveSession) {
			stopErr = err
		}
	}

	m.wg.Wait()
	if abandoned != nil {
		m.journal(context.Background(), *abandoned, false)
	}
	return stopErr
}

// detach must be called with mu held.
func (m *sessionManager) detach() {
	m.session = nil
	if m.cancelLoop != nil {
		m.cancelLoop()
		m.cancelLoop = nil
	}
}

func (m *sessionManager) startUpdateLoop(ctx context.Context) {
	m.wg.Go(func() {
		ticker := time.NewTicker(m.cfg.TickRate)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if done := m.tick(ctx); done {
					return
				}
			}
		}
	})
}

func (m *sessionManager) tick(ctx context.Context) bool {
	m.mu.Lock()
	s := m.session
	if s == nil || ctx.Err() != nil {
		m.mu.Unlock()
		return true
	}
	before := *s
	res := s.Tick(m.now())
	curr := *s
	handler := m.onSessionUpdate
	m.mu.Unlock()

	if res.Finished {
		m.l.Info("session reached target", "sessionID", curr.ID, "cycles", curr.Cycles())
		m.journal(ctx, curr, false)
	}
	if handler != nil {
		handler(ctx, before, curr)
	}
	return res.Finished
}

func (m *sessionManager) refreshStats(ctx context.Context) {
	stats, err := m.api.GetStats(ctx)
	if err != nil {
		m.l.Warn("failed to refresh stats", "err", err)
		return
	}
	streak, err := m.api.GetStreak(ctx)
	if err != nil {
		m.l.Warn("failed to refresh streak", "err", err)
		return
	}
	m.mu.Lock()
	m.stats, m.streak, m.statsKnown = stats, streak, true
	m.mu.Unlock()
}

// journal writes the session to the local journal. Failures are logged only.
func (m *sessionManager) journal(ctx context.Context, s models.Session, insert bool) {
	err := m.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if insert {
			_, err := m.repo.InsertSession(ctx, s.ID, s.Record())
			return err
		}
		_, err := m.repo.UpdateSession(ctx, s.ID, s.Record())
		return err
	})
	if err != nil {
		m.l.Error("failed to write session journal", "sessionID", s.ID, "status", s.Status(), "err", err)
	}
}
