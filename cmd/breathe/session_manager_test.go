package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Thiht/transactor"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjamonnguyen/breathe-go"
	"github.com/benjamonnguyen/breathe-go/cmd/breathe/models"
)

// mockAPI is a mock implementation of BreathingAPI
type mockAPI struct {
	mu            sync.Mutex
	startCalls    int
	completeCalls []breathe.CompleteSessionRequest
	startFunc     func(context.Context, breathe.StartSessionRequest) (breathe.BreathingSession, error)
	completeFunc  func(context.Context, breathe.SessionID, breathe.CompleteSessionRequest) (breathe.CompleteSessionResponse, error)
}

func (m *mockAPI) StartSession(ctx context.Context, req breathe.StartSessionRequest) (breathe.BreathingSession, error) {
	m.mu.Lock()
	m.startCalls++
	m.mu.Unlock()
	if m.startFunc != nil {
		return m.startFunc(ctx, req)
	}
	return breathe.BreathingSession{ID: "session-123", TechniqueID: req.TechniqueID, TargetDurationSeconds: req.TargetDurationSeconds}, nil
}

func (m *mockAPI) CompleteSession(ctx context.Context, id breathe.SessionID, req breathe.CompleteSessionRequest) (breathe.CompleteSessionResponse, error) {
	m.mu.Lock()
	m.completeCalls = append(m.completeCalls, req)
	m.mu.Unlock()
	if m.completeFunc != nil {
		return m.completeFunc(ctx, id, req)
	}
	return breathe.CompleteSessionResponse{
		Session: breathe.BreathingSession{
			ID:                  id,
			DurationSeconds:     req.DurationSeconds,
			CyclesCompleted:     req.CyclesCompleted,
			Completed:           req.Completed,
			CompletedPercentage: req.CompletedPercentage,
			MoodAfter:           req.MoodAfter,
		},
		NewStreak: 1,
	}, nil
}

func (m *mockAPI) GetStats(ctx context.Context) (breathe.Stats, error) {
	return breathe.Stats{TotalSessions: 1}, nil
}

func (m *mockAPI) GetStreak(ctx context.Context) (breathe.StreakInfo, error) {
	return breathe.StreakInfo{CurrentStreak: 1, LongestStreak: 1, DaysUntilBreak: 1}, nil
}

func (m *mockAPI) completeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.completeCalls)
}

// mockSessionRepo is a mock implementation of breathe.SessionRepo
type mockSessionRepo struct {
	mu      sync.Mutex
	records map[breathe.SessionID]breathe.SessionRecord
	failing bool
	orphans []breathe.ExistingSessionRecord
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{records: make(map[breathe.SessionID]breathe.SessionRecord)}
}

func (m *mockSessionRepo) InsertSession(ctx context.Context, id breathe.SessionID, s breathe.SessionRecord) (breathe.ExistingSessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return breathe.ExistingSessionRecord{}, errors.New("disk full")
	}
	m.records[id] = s
	return breathe.ExistingSessionRecord{ExistingRecord: breathe.NewExistingRecord(id, time.Now()), SessionRecord: s}, nil
}

func (m *mockSessionRepo) UpdateSession(ctx context.Context, id breathe.SessionID, s breathe.SessionRecord) (breathe.ExistingSessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return breathe.ExistingSessionRecord{}, errors.New("disk full")
	}
	m.records[id] = s
	return breathe.ExistingSessionRecord{ExistingRecord: breathe.NewExistingRecord(id, time.Now()), SessionRecord: s}, nil
}

func (m *mockSessionRepo) GetSession(ctx context.Context, id breathe.SessionID) (breathe.ExistingSessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return breathe.ExistingSessionRecord{SessionRecord: m.records[id]}, nil
}

func (m *mockSessionRepo) GetSessionsByStatus(ctx context.Context, statuses ...breathe.SessionStatus) ([]breathe.ExistingSessionRecord, error) {
	return m.orphans, nil
}

func (m *mockSessionRepo) ListSessions(ctx context.Context, limit int) ([]breathe.ExistingSessionRecord, error) {
	return nil, nil
}

func (m *mockSessionRepo) record(id breathe.SessionID) breathe.SessionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

// mockTransactor is a mock implementation of transactor.Transactor
type mockTransactor struct {
	withinTransactionFunc func(context.Context, func(context.Context) error) error
}

func (m *mockTransactor) WithinTransaction(ctx context.Context, fn func(context.Context) error) error {
	if m.withinTransactionFunc != nil {
		return m.withinTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

var _ transactor.Transactor = (*mockTransactor)(nil)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var boxTechnique = breathe.Technique{
	ID:   "box",
	Name: "Box",
	Phases: []breathe.Phase{
		{Name: breathe.PhaseInhale, DurationSeconds: 4},
		{Name: breathe.PhaseHold, DurationSeconds: 4},
		{Name: breathe.PhaseExhale, DurationSeconds: 4},
		{Name: breathe.PhaseHoldOut, DurationSeconds: 4},
	},
	DefaultDurationSeconds: 300,
}

type testManager struct {
	*sessionManager
	api   *mockAPI
	repo  *mockSessionRepo
	clock *fakeClock
}

func newTestManager(t *testing.T, tickRate time.Duration) testManager {
	t.Helper()
	api := &mockAPI{}
	repo := newMockSessionRepo()
	clock := &fakeClock{now: time.Date(2026, time.October, 16, 8, 0, 0, 0, time.UTC)}
	cfg := breathe.Config{
		DurationPresets:     breathe.DefaultDurationPresets,
		CompletionThreshold: breathe.DefaultCompletionThreshold,
		TickRate:            tickRate,
	}
	mgr := NewSessionManager(context.Background(), api, repo, &mockTransactor{}, cfg, log.New(io.Discard)).(*sessionManager)
	mgr.now = clock.Now
	t.Cleanup(func() { _ = mgr.Shutdown() })
	return testManager{sessionManager: mgr, api: api, repo: repo, clock: clock}
}

func validRequest() startSessionRequest {
	technique := boxTechnique
	return startSessionRequest{
		technique:     &technique,
		targetSeconds: 600,
		moodBefore:    breathe.MoodLow,
	}
}

func TestSessionManager_StartSession(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		m := newTestManager(t, time.Hour)

		var sent breathe.StartSessionRequest
		m.api.startFunc = func(ctx context.Context, req breathe.StartSessionRequest) (breathe.BreathingSession, error) {
			sent = req
			return breathe.BreathingSession{ID: "session-123"}, nil
		}

		session, err := m.StartSession(context.Background(), validRequest())
		require.NoError(t, err)
		assert.Equal(t, breathe.SessionID("session-123"), session.ID)
		assert.Equal(t, breathe.SessionRunning, session.Status())
		assert.True(t, m.HasSession())

		assert.Equal(t, breathe.TechniqueID("box"), sent.TechniqueID)
		assert.Equal(t, 600, sent.TargetDurationSeconds)
		require.NotNil(t, sent.MoodBefore)
		assert.Equal(t, breathe.MoodLow, *sent.MoodBefore)

		assert.Equal(t, breathe.SessionRunning, m.repo.record("session-123").Status)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		m := newTestManager(t, time.Hour)

		req := validRequest()
		req.technique = nil
		_, err := m.StartSession(context.Background(), req)
		assert.ErrorIs(t, err, breathe.ErrTechniqueRequired)

		req = validRequest()
		req.targetSeconds = 61
		_, err = m.StartSession(context.Background(), req)
		assert.ErrorIs(t, err, breathe.ErrInvalidDuration)

		assert.Zero(t, m.api.startCalls)
		assert.False(t, m.HasSession())
	})

	t.Run("single active session", func(t *testing.T) {
		t.Parallel()
		m := newTestManager(t, time.Hour)

		_, err := m.StartSession(context.Background(), validRequest())
		require.NoError(t, err)
		_, err = m.StartSession(context.Background(), validRequest())
		assert.ErrorIs(t, err, breathe.ErrSessionActive)
		assert.Equal(t, 1, m.api.startCalls)
	})

	t.Run("start failure stays idle and never completes", func(t *testing.T) {
		t.Parallel()
		m := newTestManager(t, time.Hour)
		m.api.startFunc = func(ctx context.Context, req breathe.StartSessionRequest) (breathe.BreathingSession, error) {
			return breathe.BreathingSession{}, errors.New("503")
		}

		_, err := m.StartSession(context.Background(), validRequest())
		require.Error(t, err)
		assert.False(t, m.HasSession())

		_, err = m.StopSession(context.Background(), "")
		assert.ErrorIs(t, err, breathe.ErrNoActiveSession)
		assert.Zero(t, m.api.completeCount())
	})

	t.Run("journal failure does not block", func(t *testing.T) {
		t.Parallel()
		m := newTestManager(t, time.Hour)
		m.repo.failing = true

		_, err := m.StartSession(context.Background(), validRequest())
		require.NoError(t, err)
		assert.True(t, m.HasSession())
	})
}

func TestSessionManager_StopEarly(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, time.Hour)

	_, err := m.StartSession(context.Background(), validRequest())
	require.NoError(t, err)

	m.clock.Advance(2 * time.Minute)
	report, err := m.StopSession(context.Background(), breathe.MoodGood)
	require.NoError(t, err)

	require.Equal(t, 1, m.api.completeCount())
	sent := m.api.completeCalls[0]
	assert.Equal(t, 120, sent.DurationSeconds)
	assert.Equal(t, 7, sent.CyclesCompleted)
	assert.Equal(t, 20, sent.CompletedPercentage)
	assert.False(t, sent.Completed)
	require.NotNil(t, sent.MoodAfter)
	assert.Equal(t, breathe.MoodGood, *sent.MoodAfter)

	assert.Equal(t, breathe.HeadlinePartial, report.Headline)
	assert.Equal(t, "2 min", report.DurationText)
	assert.Equal(t, 1, report.Streak)

	assert.False(t, m.HasSession())
	rec := m.repo.record("session-123")
	assert.Equal(t, breathe.SessionCompleted, rec.Status)
	assert.Equal(t, breathe.MoodGood, rec.MoodAfter)

	_, _, known := m.LatestStats()
	assert.True(t, known)

	_, err = m.StopSession(context.Background(), "")
	assert.ErrorIs(t, err, breathe.ErrNoActiveSession)
	assert.Equal(t, 1, m.api.completeCount())
}

func TestSessionManager_ConcurrentStopCompletesOnce(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, time.Hour)

	_, err := m.StartSession(context.Background(), validRequest())
	require.NoError(t, err)
	m.clock.Advance(time.Minute)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			_, _ = m.StopSession(context.Background(), "")
		})
	}
	wg.Wait()
	assert.Equal(t, 1, m.api.completeCount())
}

func TestSessionManager_CompleteFailureIsNotRetried(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, time.Hour)
	m.api.completeFunc = func(ctx context.Context, id breathe.SessionID, req breathe.CompleteSessionRequest) (breathe.CompleteSessionResponse, error) {
		return breathe.CompleteSessionResponse{}, errors.New("timeout")
	}

	_, err := m.StartSession(context.Background(), validRequest())
	require.NoError(t, err)
	m.clock.Advance(time.Minute)

	_, err = m.StopSession(context.Background(), "")
	require.Error(t, err)
	assert.False(t, m.HasSession())
	assert.Equal(t, 1, m.api.completeCount())
	assert.Equal(t, breathe.SessionFinishing, m.repo.record("session-123").Status)
}

func TestSessionManager_AbandonNeverCompletes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		prepare func(t *testing.T, m testManager)
	}{
		{name: "running", prepare: func(t *testing.T, m testManager) {}},
		{name: "paused", prepare: func(t *testing.T, m testManager) {
			_, err := m.PauseSession(context.Background())
			require.NoError(t, err)
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := newTestManager(t, time.Hour)

			_, err := m.StartSession(context.Background(), validRequest())
			require.NoError(t, err)
			m.clock.Advance(30 * time.Second)
			tc.prepare(t, m)

			abandoned, err := m.AbandonSession(context.Background())
			require.NoError(t, err)
			assert.Equal(t, breathe.SessionAbandoned, abandoned.Status())
			assert.False(t, m.HasSession())
			assert.Zero(t, m.api.completeCount())
			assert.Equal(t, breathe.SessionAbandoned, m.repo.record("session-123").Status)

			_, err = m.StopSession(context.Background(), "")
			assert.ErrorIs(t, err, breathe.ErrNoActiveSession)
			assert.Zero(t, m.api.completeCount())
		})
	}
}

func TestSessionManager_PauseResume(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, time.Hour)

	_, err := m.StartSession(context.Background(), validRequest())
	require.NoError(t, err)

	m.clock.Advance(time.Minute)
	paused, err := m.PauseSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, breathe.SessionPaused, paused.Status())

	_, err = m.PauseSession(context.Background())
	assert.ErrorIs(t, err, breathe.ErrInvalidTransition)

	m.clock.Advance(10 * time.Minute)
	resumed, err := m.ResumeSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Minute, resumed.Elapsed())

	m.clock.Advance(time.Minute)
	report, err := m.StopSession(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "2 min", report.DurationText)
	assert.Equal(t, 20, report.Percentage)
}

func TestSessionManager_UpdateLoopReachesTarget(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, time.Millisecond)

	var (
		mu      sync.Mutex
		updates []models.Session
	)
	m.OnSessionUpdate(func(ctx context.Context, before, curr models.Session) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, curr)
	})

	req := validRequest()
	req.targetSeconds = 60
	_, err := m.StartSession(context.Background(), req)
	require.NoError(t, err)

	m.clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) > 0 && updates[len(updates)-1].Status() == breathe.SessionFinishing
	}, time.Second, time.Millisecond)

	mu.Lock()
	last := updates[len(updates)-1]
	mu.Unlock()
	assert.Equal(t, breathe.SessionFinishing, last.Status())
	assert.Equal(t, time.Minute, last.Elapsed())
	assert.Zero(t, m.api.completeCount(), "reaching target waits for the final stop")

	report, err := m.StopSession(context.Background(), breathe.MoodGreat)
	require.NoError(t, err)
	assert.Equal(t, breathe.HeadlineCompleted, report.Headline)
	assert.Equal(t, 100, report.Percentage)
	assert.Equal(t, 1, m.api.completeCount())
}

func TestSessionManager_RestorePendingSessions(t *testing.T) {
	t.Parallel()

	repo := newMockSessionRepo()
	updatedAt := time.Date(2026, time.October, 15, 21, 0, 0, 0, time.UTC)
	for _, id := range []breathe.SessionID{"a", "b"} {
		repo.orphans = append(repo.orphans, breathe.ExistingSessionRecord{
			ExistingRecord: breathe.ExistingRecord[breathe.SessionID]{ID: id, UpdatedAt: updatedAt},
			SessionRecord:  breathe.SessionRecord{TechniqueID: "box", Status: breathe.SessionRunning},
		})
	}

	mgr := NewSessionManager(context.Background(), &mockAPI{}, repo, &mockTransactor{}, breathe.Config{}, log.New(io.Discard))
	t.Cleanup(func() { _ = mgr.Shutdown() })

	for _, id := range []breathe.SessionID{"a", "b"} {
		rec := repo.record(id)
		assert.Equal(t, breathe.SessionAbandoned, rec.Status)
		assert.Equal(t, updatedAt, rec.FinishedAt)
	}
	assert.False(t, mgr.HasSession())
}

func TestSessionManager_ShutdownAbandonsActive(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, time.Millisecond)

	_, err := m.StartSession(context.Background(), validRequest())
	require.NoError(t, err)

	require.NoError(t, m.Shutdown())
	assert.False(t, m.HasSession())
	assert.Equal(t, breathe.SessionAbandoned, m.repo.record("session-123").Status)
	assert.Zero(t, m.api.completeCount())
}

func startAndReachTarget(t *testing.T, m testManager) {
	t.Helper()
	req := validRequest()
	req.targetSeconds = 60
	_, err := m.StartSession(context.Background(), req)
	require.NoError(t, err)

	m.clock.Advance(61 * time.Second)
	require.True(t, m.tick(context.Background()))
	s, ok := m.CurrentSession()
	require.True(t, ok)
	require.Equal(t, breathe.SessionFinishing, s.Status())
}

func TestSessionManager_FinishingSessionCannotBeAbandoned(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, time.Hour)
	startAndReachTarget(t, m)

	_, err := m.AbandonSession(context.Background())
	assert.ErrorIs(t, err, breathe.ErrSessionFinishing)
	assert.True(t, m.HasSession())
	assert.Zero(t, m.api.completeCount())

	report, err := m.StopSession(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, breathe.HeadlineCompleted, report.Headline)
	require.Equal(t, 1, m.api.completeCount())
	sent := m.api.completeCalls[0]
	assert.True(t, sent.Completed)
	assert.Equal(t, 60, sent.DurationSeconds)
	assert.Nil(t, sent.MoodAfter)

	// the slot is free again once the first session resolved
	_, err = m.StartSession(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, m.api.startCalls)
}

func TestSessionManager_ShutdownCompletesFinishingSession(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, time.Hour)
	startAndReachTarget(t, m)

	require.NoError(t, m.Shutdown())
	assert.False(t, m.HasSession())
	require.Equal(t, 1, m.api.completeCount())
	sent := m.api.completeCalls[0]
	assert.True(t, sent.Completed)
	assert.Equal(t, 100, sent.CompletedPercentage)
	assert.Nil(t, sent.MoodAfter)
	assert.Equal(t, breathe.SessionCompleted, m.repo.record("session-123").Status)

	require.NoError(t, m.Shutdown())
	assert.Equal(t, 1, m.api.completeCount())

	_, err := m.StartSession(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestSessionManager_ShutdownDuringStart(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, time.Millisecond)

	release := make(chan struct{})
	m.api.startFunc = func(ctx context.Context, req breathe.StartSessionRequest) (breathe.BreathingSession, error) {
		<-release
		return breathe.BreathingSession{ID: "session-123"}, nil
	}

	startErr := make(chan error, 1)
	go func() {
		_, err := m.StartSession(context.Background(), validRequest())
		startErr <- err
	}()
	require.Eventually(t, func() bool {
		m.api.mu.Lock()
		defer m.api.mu.Unlock()
		return m.api.startCalls == 1
	}, time.Second, time.Millisecond)

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- m.Shutdown() }()
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.closed
	}, time.Second, time.Millisecond)

	close(release)
	assert.ErrorIs(t, <-startErr, ErrManagerClosed)
	require.NoError(t, <-shutdownErr)
	assert.False(t, m.HasSession())
	assert.Equal(t, breathe.SessionAbandoned, m.repo.record("session-123").Status)
	assert.Zero(t, m.api.completeCount())
}
