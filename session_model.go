package breathe

import (
	"context"
	"strconv"
	"time"
)

type SessionStatus uint8

const (
	_ SessionStatus = iota
	SessionIdle
	SessionPending
	SessionRunning
	SessionPaused
	SessionFinishing
	SessionCompleted
	SessionAbandoned
)

func (s SessionStatus) String() string {
	switch s {
	case SessionIdle:
		return "Idle"
	case SessionPending:
		return "Pending"
	case SessionRunning:
		return "Running"
	case SessionPaused:
		return "Paused"
	case SessionFinishing:
		return "Finishing"
	case SessionCompleted:
		return "Completed"
	case SessionAbandoned:
		return "Abandoned"
	default:
		panic("no matching enum for SessionStatus: " + strconv.Itoa(int(s)))
	}
}

// IsTerminal reports whether no further transition can leave s.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionAbandoned
}

// IsActive reports whether a session in status s still owns the phase timer.
func (s SessionStatus) IsActive() bool {
	switch s {
	case SessionPending, SessionRunning, SessionPaused:
		return true
	default:
		return false
	}
}

type (
	SessionID   string
	TechniqueID string
)

// SessionRecord is the local journal entry of one session attempt. The ID of
// the existing record is the identifier returned by the backend "start" call.
type SessionRecord struct {
	TechniqueID TechniqueID
	Target      time.Duration
	Elapsed     time.Duration
	Cycles      int
	Status      SessionStatus
	Percentage  int
	Completed   bool
	MoodBefore  Mood
	MoodAfter   Mood

	//
	StartedAt  time.Time
	FinishedAt time.Time
}

type ExistingSessionRecord struct {
	ExistingRecord[SessionID]
	SessionRecord
}

type SessionRepo interface {
	InsertSession(ctx context.Context, id SessionID, s SessionRecord) (ExistingSessionRecord, error)
	UpdateSession(ctx context.Context, id SessionID, s SessionRecord) (ExistingSessionRecord, error)
	GetSession(ctx context.Context, id SessionID) (ExistingSessionRecord, error)
	GetSessionsByStatus(ctx context.Context, statuses ...SessionStatus) ([]ExistingSessionRecord, error)
	ListSessions(ctx context.Context, limit int) ([]ExistingSessionRecord, error)
}
