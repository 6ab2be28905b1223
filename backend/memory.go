// Package backend is an in-memory implementation of the breathing REST API
// for local development and end-to-end tests of the breathe CLI.
package backend

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/benjamonnguyen/breathe-go"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyCompleted  = errors.New("session already completed")
	ErrTechniqueInUse    = errors.New("technique is referenced by completed sessions")
	ErrSystemTechnique   = errors.New("system techniques cannot be modified")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedTarget = errors.New("target duration is not a supported preset")
)

// SessionRow is a stored session together with its owner.
type SessionRow struct {
	UserID string
	breathe.BreathingSession
}

type techniqueRow struct {
	ownerID string
	breathe.Technique
}

// InMemoryStore keeps techniques, favorites and sessions in memory.
type InMemoryStore struct {
	mu         sync.RWMutex
	techniques map[breathe.TechniqueID]techniqueRow
	favorites  map[string]map[breathe.TechniqueID]struct{}
	sessions   map[breathe.SessionID]SessionRow
}

// NewInMemoryStore constructs a store seeded with the system techniques.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{
		techniques: make(map[breathe.TechniqueID]techniqueRow),
		favorites:  make(map[string]map[breathe.TechniqueID]struct{}),
		sessions:   make(map[breathe.SessionID]SessionRow),
	}
	s.seed()
	return s
}

func (s *InMemoryStore) seed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range SystemTechniques {
		s.techniques[t.ID] = techniqueRow{Technique: t}
	}
}

// ListTechniques returns the system techniques followed by the user's own.
func (s *InMemoryStore) ListTechniques(ctx context.Context, userID string) []breathe.Technique {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []breathe.Technique
	for _, row := range s.techniques {
		if row.IsSystem || row.ownerID == userID {
			out = append(out, row.Technique)
		}
	}
	sortTechniques(out)
	return out
}

func (s *InMemoryStore) GetTechnique(ctx context.Context, userID string, id breathe.TechniqueID) (breathe.Technique, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visibleTechnique(userID, id)
}

// visibleTechnique must be called with mu held.
func (s *InMemoryStore) visibleTechnique(userID string, id breathe.TechniqueID) (breathe.Technique, error) {
	row, ok := s.techniques[id]
	if !ok || (!row.IsSystem && row.ownerID != userID) {
		return breathe.Technique{}, ErrNotFound
	}
	return row.Technique, nil
}

func (s *InMemoryStore) InsertTechnique(ctx context.Context, userID string, t breathe.Technique) breathe.Technique {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = breathe.TechniqueID(uuid.NewString())
	}
	t.IsSystem = false
	s.techniques[t.ID] = techniqueRow{ownerID: userID, Technique: t}
	return t
}

func (s *InMemoryStore) UpdateTechnique(ctx context.Context, userID string, t breathe.Technique) (breathe.Technique, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.visibleTechnique(userID, t.ID)
	if err != nil {
		return breathe.Technique{}, err
	}
	if existing.IsSystem {
		return breathe.Technique{}, ErrSystemTechnique
	}
	t.IsSystem = false
	s.techniques[t.ID] = techniqueRow{ownerID: userID, Technique: t}
	return t, nil
}

// DeleteTechnique refuses to remove a technique a completed session points to.
func (s *InMemoryStore) DeleteTechnique(ctx context.Context, userID string, id breathe.TechniqueID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.visibleTechnique(userID, id)
	if err != nil {
		return err
	}
	if existing.IsSystem {
		return ErrSystemTechnique
	}
	for _, row := range s.sessions {
		if row.TechniqueID == id && row.CompletedAt != nil {
			return ErrTechniqueInUse
		}
	}

	delete(s.techniques, id)
	for _, favs := range s.favorites {
		delete(favs, id)
	}
	return nil
}

func (s *InMemoryStore) ListFavorites(ctx context.Context, userID string) []breathe.Technique {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []breathe.Technique
	for id := range s.favorites[userID] {
		if t, err := s.visibleTechnique(userID, id); err == nil {
			out = append(out, t)
		}
	}
	sortTechniques(out)
	return out
}

// SetFavorite is idempotent in both directions.
func (s *InMemoryStore) SetFavorite(ctx context.Context, userID string, id breathe.TechniqueID, favorite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.visibleTechnique(userID, id); err != nil {
		return err
	}
	favs := s.favorites[userID]
	if favs == nil {
		favs = make(map[breathe.TechniqueID]struct{})
		s.favorites[userID] = favs
	}
	if favorite {
		favs[id] = struct{}{}
	} else {
		delete(favs, id)
	}
	return nil
}

func (s *InMemoryStore) InsertSession(ctx context.Context, userID string, session breathe.BreathingSession) breathe.BreathingSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ID == "" {
		session.ID = breathe.SessionID(uuid.NewString())
	}
	s.sessions[session.ID] = SessionRow{UserID: userID, BreathingSession: session}
	return session
}

// UpdateSession applies fn to the user's session under the write lock.
func (s *InMemoryStore) UpdateSession(ctx context.Context, userID string, id breathe.SessionID, fn func(*breathe.BreathingSession) error) (breathe.BreathingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.sessions[id]
	if !ok || row.UserID != userID {
		return breathe.BreathingSession{}, ErrNotFound
	}
	session := row.BreathingSession
	if err := fn(&session); err != nil {
		return breathe.BreathingSession{}, err
	}
	row.BreathingSession = session
	s.sessions[id] = row
	return session, nil
}

// ListSessions returns the user's sessions, newest first.
func (s *InMemoryStore) ListSessions(ctx context.Context, userID string) []breathe.BreathingSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []breathe.BreathingSession
	for _, row := range s.sessions {
		if row.UserID == userID {
			out = append(out, row.BreathingSession)
		}
	}
	slices.SortFunc(out, func(a, b breathe.BreathingSession) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

func sortTechniques(ts []breathe.Technique) {
	slices.SortFunc(ts, func(a, b breathe.Technique) int {
		if a.IsSystem != b.IsSystem {
			if a.IsSystem {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Name, b.Name)
	})
}

// SystemTechniques are seeded into every store.
var SystemTechniques = []breathe.Technique{
	{
		ID:          "box",
		Name:        "Box Breathing",
		Description: "Equal four-count sides to steady attention.",
		Color:       "#5B8DEF",
		IsSystem:    true,
		Phases: []breathe.Phase{
			{Name: breathe.PhaseInhale, DurationSeconds: 4},
			{Name: breathe.PhaseHold, DurationSeconds: 4},
			{Name: breathe.PhaseExhale, DurationSeconds: 4},
			{Name: breathe.PhaseHoldOut, DurationSeconds: 4},
		},
		DefaultDurationSeconds: 300,
	},
	{
		ID:          "relaxing-478",
		Name:        "4-7-8 Relaxing Breath",
		Description: "Long exhale to wind down before sleep.",
		Color:       "#8E6CEF",
		IsSystem:    true,
		Phases: []breathe.Phase{
			{Name: breathe.PhaseInhale, DurationSeconds: 4},
			{Name: breathe.PhaseHold, DurationSeconds: 7},
			{Name: breathe.PhaseExhale, DurationSeconds: 8},
		},
		DefaultDurationSeconds: 180,
	},
	{
		ID:          "coherent",
		Name:        "Coherent Breathing",
		Description: "Five seconds in, five out, about six breaths a minute.",
		Color:       "#3CB99C",
		IsSystem:    true,
		Phases: []breathe.Phase{
			{Name: breathe.PhaseInhale, DurationSeconds: 5},
			{Name: breathe.PhaseExhale, DurationSeconds: 5},
		},
		DefaultDurationSeconds: 600,
	},
	{
		ID:          "energizing",
		Name:        "Energizing Breath",
		Description: "Short quick rounds to wake up.",
		Color:       "#F2A541",
		IsSystem:    true,
		Phases: []breathe.Phase{
			{Name: breathe.PhaseInhale, DurationSeconds: 2},
			{Name: breathe.PhaseExhale, DurationSeconds: 2},
		},
		DefaultDurationSeconds: 60,
	},
	{
		ID:          "calming",
		Name:        "Calming Exhale",
		Description: "Exhale twice as long as the inhale.",
		Color:       "#4FA3D9",
		IsSystem:    true,
		Phases: []breathe.Phase{
			{Name: breathe.PhaseInhale, DurationSeconds: 4},
			{Name: breathe.PhaseExhale, DurationSeconds: 8},
		},
		DefaultDurationSeconds: 300,
	},
}
