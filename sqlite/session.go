// Package sqlite implements repo interfaces
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	txStdLib "github.com/Thiht/transactor/stdlib"
	"github.com/charmbracelet/log"

	"github.com/benjamonnguyen/breathe-go"
)

const (
	SelectAllSessions = "SELECT id, technique_id, target_ms, elapsed_ms, cycles, status, percentage, completed, mood_before, mood_after, started_at, finished_at, created_at, updated_at FROM breathing_sessions"
	UpdateSession     = "UPDATE breathing_sessions SET technique_id = ?, target_ms = ?, elapsed_ms = ?, cycles = ?, status = ?, percentage = ?, completed = ?, mood_before = ?, mood_after = ?, started_at = ?, finished_at = ?, updated_at = ? WHERE id = ?"
)

type sessionEntity struct {
	ID          string
	TechniqueID string
	TargetMS    int64
	ElapsedMS   int64
	Cycles      int
	Status      uint8
	Percentage  int
	Completed   bool
	MoodBefore  string
	MoodAfter   string
	StartedAt   int64
	FinishedAt  int64
	CreatedAt   int64
	UpdatedAt   int64
}

type sessionRepo struct {
	dbGetter txStdLib.DBGetter
	l        *log.Logger
}

func NewSessionRepo(dbGetter txStdLib.DBGetter, logger *log.Logger) *sessionRepo {
	return &sessionRepo{
		dbGetter: dbGetter,
		l:        logger,
	}
}

func (r *sessionRepo) InsertSession(ctx context.Context, id breathe.SessionID, session breathe.SessionRecord) (breathe.ExistingSessionRecord, error) {
	if id == "" {
		return breathe.ExistingSessionRecord{}, fmt.Errorf("provide id")
	}
	if session.TechniqueID == "" {
		return breathe.ExistingSessionRecord{}, fmt.Errorf("provide required field 'TechniqueID'")
	}

	existingRecord := breathe.ExistingSessionRecord{
		SessionRecord:  session,
		ExistingRecord: breathe.NewExistingRecord(id, time.Now()),
	}
	e := mapToSessionEntity(existingRecord)

	args := []any{
		e.ID,
		e.TechniqueID,
		e.TargetMS,
		e.ElapsedMS,
		e.Cycles,
		e.Status,
		e.Percentage,
		e.Completed,
		e.MoodBefore,
		e.MoodAfter,
		e.StartedAt,
		e.FinishedAt,
		e.CreatedAt,
		e.UpdatedAt,
	}
	query := "INSERT INTO breathing_sessions (id, technique_id, target_ms, elapsed_ms, cycles, status, percentage, completed, mood_before, mood_after, started_at, finished_at, created_at, updated_at) VALUES " + GenerateParameters(len(args))
	r.l.Debug("creating session", "query", query, "args", args)
	if _, err := r.dbGetter(ctx).ExecContext(ctx, query, args...); err != nil {
		return breathe.ExistingSessionRecord{}, err
	}

	return existingRecord, nil
}

func (r *sessionRepo) UpdateSession(ctx context.Context, id breathe.SessionID, s breathe.SessionRecord) (breathe.ExistingSessionRecord, error) {
	existing, err := r.GetSession(ctx, id)
	if err != nil {
		return existing, err
	}

	existing.SessionRecord = s
	existing.Touch(time.Now())
	e := mapToSessionEntity(existing)

	args := []any{
		e.TechniqueID,
		e.TargetMS,
		e.ElapsedMS,
		e.Cycles,
		e.Status,
		e.Percentage,
		e.Completed,
		e.MoodBefore,
		e.MoodAfter,
		e.StartedAt,
		e.FinishedAt,
		e.UpdatedAt,
		e.ID,
	}
	r.l.Debug("updating session", "query", UpdateSession, "args", args)
	if _, err := r.dbGetter(ctx).ExecContext(ctx, UpdateSession, args...); err != nil {
		return breathe.ExistingSessionRecord{}, err
	}

	return existing, nil
}

func (r *sessionRepo) GetSession(ctx context.Context, id breathe.SessionID) (breathe.ExistingSessionRecord, error) {
	if id == "" {
		return breathe.ExistingSessionRecord{}, fmt.Errorf("provide id")
	}

	row := r.dbGetter(ctx).QueryRowContext(
		ctx,
		fmt.Sprintf("%s WHERE id=?", SelectAllSessions), id,
	)

	return extractSession(row)
}

func (r *sessionRepo) GetSessionsByStatus(ctx context.Context, statuses ...breathe.SessionStatus) ([]breathe.ExistingSessionRecord, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf("%s WHERE status IN %s ORDER BY created_at", SelectAllSessions, GenerateParameters(len(statuses)))
	r.l.Debug("getting sessions by status", "query", query, "statuses", statuses)
	var statusInts []any
	for _, s := range statuses {
		statusInts = append(statusInts, uint8(s))
	}
	rows, err := r.dbGetter(ctx).QueryContext(ctx, query, statusInts...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint

	return extractSessions(rows)
}

func (r *sessionRepo) ListSessions(ctx context.Context, limit int) ([]breathe.ExistingSessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := SelectAllSessions + " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	r.l.Debug("listing sessions", "query", query, "limit", limit)
	rows, err := r.dbGetter(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint

	return extractSessions(rows)
}

func extractSessions(rows *sql.Rows) ([]breathe.ExistingSessionRecord, error) {
	var sessions []breathe.ExistingSessionRecord
	for rows.Next() {
		session, err := extractSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func extractSession(s Scannable) (breathe.ExistingSessionRecord, error) {
	var e sessionEntity
	if err := s.Scan(&e.ID, &e.TechniqueID, &e.TargetMS, &e.ElapsedMS, &e.Cycles, &e.Status, &e.Percentage, &e.Completed, &e.MoodBefore, &e.MoodAfter, &e.StartedAt, &e.FinishedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return breathe.ExistingSessionRecord{}, ErrNotFound
		}
		return breathe.ExistingSessionRecord{}, err
	}

	return mapToExistingSessionRecord(e), nil
}

func mapToSessionEntity(session breathe.ExistingSessionRecord) sessionEntity {
	return sessionEntity{
		ID:          string(session.ID),
		TechniqueID: string(session.TechniqueID),
		TargetMS:    session.Target.Milliseconds(),
		ElapsedMS:   session.Elapsed.Milliseconds(),
		Cycles:      session.Cycles,
		Status:      uint8(session.Status),
		Percentage:  session.Percentage,
		Completed:   session.Completed,
		MoodBefore:  string(session.MoodBefore),
		MoodAfter:   string(session.MoodAfter),
		StartedAt:   toUnix(session.StartedAt),
		FinishedAt:  toUnix(session.FinishedAt),
		CreatedAt:   session.CreatedAt.Unix(),
		UpdatedAt:   session.UpdatedAt.Unix(),
	}
}

func mapToExistingSessionRecord(e sessionEntity) breathe.ExistingSessionRecord {
	return breathe.ExistingSessionRecord{
		ExistingRecord: breathe.ExistingRecord[breathe.SessionID]{
			ID:        breathe.SessionID(e.ID),
			CreatedAt: time.Unix(e.CreatedAt, 0),
			UpdatedAt: time.Unix(e.UpdatedAt, 0),
		},
		SessionRecord: breathe.SessionRecord{
			TechniqueID: breathe.TechniqueID(e.TechniqueID),
			Target:      time.Duration(e.TargetMS) * time.Millisecond,
			Elapsed:     time.Duration(e.ElapsedMS) * time.Millisecond,
			Cycles:      e.Cycles,
			Status:      breathe.SessionStatus(e.Status),
			Percentage:  e.Percentage,
			Completed:   e.Completed,
			MoodBefore:  breathe.Mood(e.MoodBefore),
			MoodAfter:   breathe.Mood(e.MoodAfter),
			StartedAt:   fromUnix(e.StartedAt),
			FinishedAt:  fromUnix(e.FinishedAt),
		},
	}
}

// zero times are stored as 0 so they survive the round trip
func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0)
}

var _ breathe.SessionRepo = (*sessionRepo)(nil)
