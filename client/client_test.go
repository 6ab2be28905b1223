package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjamonnguyen/breathe-go"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "token-123", WithHTTPClient(srv.Client()))
}

func TestClient_StartSession(t *testing.T) {
	t.Parallel()

	mood := breathe.MoodLow
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/breathing/sessions", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

		var req breathe.StartSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, breathe.TechniqueID("box"), req.TechniqueID)
		assert.Equal(t, 300, req.TargetDurationSeconds)
		require.NotNil(t, req.MoodBefore)
		assert.Equal(t, mood, *req.MoodBefore)

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"s-1","technique_id":"box","target_duration_seconds":300,"started_at":"2026-10-16T08:00:00Z"}}`)
	})

	got, err := c.StartSession(context.Background(), breathe.StartSessionRequest{
		TechniqueID:           "box",
		TargetDurationSeconds: 300,
		MoodBefore:            &mood,
	})
	require.NoError(t, err)
	assert.Equal(t, breathe.SessionID("s-1"), got.ID)
	assert.Equal(t, 300, got.TargetDurationSeconds)
	assert.Equal(t, time.Date(2026, time.October, 16, 8, 0, 0, 0, time.UTC), got.StartedAt.UTC())
}

func TestClient_CompleteSession(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/breathing/sessions/s-1/complete", r.URL.Path)

		var req breathe.CompleteSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, breathe.CompleteSessionRequest{
			DurationSeconds:     120,
			CyclesCompleted:     4,
			CompletedPercentage: 20,
		}, req)

		_, _ = io.WriteString(w, `{"data":{"session":{"id":"s-1","duration_seconds":120,"cycles_completed":4,"completed":false,"completed_percentage":20},"new_streak":3}}`)
	})

	got, err := c.CompleteSession(context.Background(), "s-1", breathe.CompleteSessionRequest{
		DurationSeconds:     120,
		CyclesCompleted:     4,
		CompletedPercentage: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, got.NewStreak)
	assert.Equal(t, 20, got.Session.CompletedPercentage)

	_, err = c.CompleteSession(context.Background(), "", breathe.CompleteSessionRequest{})
	assert.Error(t, err)
}

func TestClient_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		status  int
		body    string
		wantIs  error
		wantMsg string
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`, wantIs: ErrRateLimited, wantMsg: "slow down"},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"token expired"}`, wantIs: ErrUnauthorized, wantMsg: "token expired"},
		{name: "not found", status: http.StatusNotFound, body: `{"error":"session not found"}`, wantIs: ErrNotFound, wantMsg: "session not found"},
		{name: "plain text", status: http.StatusBadGateway, body: "upstream down\n", wantMsg: "upstream down"},
		{name: "conflict", status: http.StatusConflict, body: `{"error":"session already completed"}`, wantMsg: "session already completed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})

			_, err := c.GetStreak(context.Background())
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.wantMsg, apiErr.Message)
			if tc.wantIs != nil {
				assert.ErrorIs(t, err, tc.wantIs)
			} else {
				assert.NotErrorIs(t, err, ErrRateLimited)
				assert.NotErrorIs(t, err, ErrUnauthorized)
			}
		})
	}
}

func TestClient_QueryParams(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/breathing/calendar":
			assert.Equal(t, "2026", r.URL.Query().Get("year"))
			assert.Equal(t, "10", r.URL.Query().Get("month"))
			_, _ = io.WriteString(w, `{"data":[{"date":"2026-10-16","session_count":2,"total_seconds":600,"completed":true}]}`)
		case "/breathing/recommendations":
			assert.Equal(t, "low", r.URL.Query().Get("mood"))
			assert.Equal(t, "night", r.URL.Query().Get("time_of_day"))
			_, _ = io.WriteString(w, `{"data":{"technique":{"id":"478","name":"4-7-8"},"duration_seconds":300,"reason":"wind down"}}`)
		case "/breathing/sessions":
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			_, _ = io.WriteString(w, `{"data":[]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	days, err := c.GetCalendar(context.Background(), 2026, time.October)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.True(t, days[0].Completed)

	rec, err := c.GetRecommendation(context.Background(), breathe.MoodLow, breathe.Night)
	require.NoError(t, err)
	assert.Equal(t, breathe.TechniqueID("478"), rec.Technique.ID)

	sessions, err := c.ListSessions(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestClient_ToggleFavorite(t *testing.T) {
	t.Parallel()

	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, `{"data":[{"id":"box","name":"Box"}]}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	added, err := c.ToggleFavorite(context.Background(), "box")
	require.NoError(t, err)
	assert.False(t, added)

	added, err = c.ToggleFavorite(context.Background(), "478")
	require.NoError(t, err)
	assert.True(t, added)

	assert.Equal(t, []string{
		"GET /breathing/favorites",
		"DELETE /breathing/favorites/box",
		"GET /breathing/favorites",
		"POST /breathing/favorites/478",
	}, calls)
}
