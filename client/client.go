// Package client is a typed HTTP client for the breathing endpoints of the
// backend API. Every response is unwrapped from the {"data": ...} envelope.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"

	"github.com/benjamonnguyen/breathe-go"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	l          *log.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.l = l
	}
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		l:          log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Catalog

func (c *Client) ListTechniques(ctx context.Context) ([]breathe.Technique, error) {
	return do[[]breathe.Technique](ctx, c, http.MethodGet, "/breathing/techniques", nil)
}

func (c *Client) ListFavorites(ctx context.Context) ([]breathe.Technique, error) {
	return do[[]breathe.Technique](ctx, c, http.MethodGet, "/breathing/favorites", nil)
}

func (c *Client) AddFavorite(ctx context.Context, id breathe.TechniqueID) error {
	_, err := do[json.RawMessage](ctx, c, http.MethodPost, "/breathing/favorites/"+url.PathEscape(string(id)), nil)
	return err
}

func (c *Client) RemoveFavorite(ctx context.Context, id breathe.TechniqueID) error {
	_, err := do[json.RawMessage](ctx, c, http.MethodDelete, "/breathing/favorites/"+url.PathEscape(string(id)), nil)
	return err
}

// ToggleFavorite flips the favorite state of id and returns the new state.
func (c *Client) ToggleFavorite(ctx context.Context, id breathe.TechniqueID) (bool, error) {
	favorites, err := c.ListFavorites(ctx)
	if err != nil {
		return false, err
	}
	for _, f := range favorites {
		if f.ID == id {
			return false, c.RemoveFavorite(ctx, id)
		}
	}
	return true, c.AddFavorite(ctx, id)
}

func (c *Client) CreateTechnique(ctx context.Context, in breathe.TechniqueInput) (breathe.Technique, error) {
	return do[breathe.Technique](ctx, c, http.MethodPost, "/breathing/techniques", in)
}

func (c *Client) UpdateTechnique(ctx context.Context, id breathe.TechniqueID, in breathe.TechniqueInput) (breathe.Technique, error) {
	return do[breathe.Technique](ctx, c, http.MethodPut, "/breathing/techniques/"+url.PathEscape(string(id)), in)
}

func (c *Client) DeleteTechnique(ctx context.Context, id breathe.TechniqueID) error {
	_, err := do[json.RawMessage](ctx, c, http.MethodDelete, "/breathing/techniques/"+url.PathEscape(string(id)), nil)
	return err
}

// Sessions

func (c *Client) StartSession(ctx context.Context, req breathe.StartSessionRequest) (breathe.BreathingSession, error) {
	return do[breathe.BreathingSession](ctx, c, http.MethodPost, "/breathing/sessions", req)
}

func (c *Client) CompleteSession(ctx context.Context, id breathe.SessionID, req breathe.CompleteSessionRequest) (breathe.CompleteSessionResponse, error) {
	if id == "" {
		return breathe.CompleteSessionResponse{}, fmt.Errorf("complete session: missing session id")
	}
	path := "/breathing/sessions/" + url.PathEscape(string(id)) + "/complete"
	return do[breathe.CompleteSessionResponse](ctx, c, http.MethodPost, path, req)
}

func (c *Client) ListSessions(ctx context.Context, limit int) ([]breathe.BreathingSession, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return do[[]breathe.BreathingSession](ctx, c, http.MethodGet, withQuery("/breathing/sessions", q), nil)
}

// Aggregates

func (c *Client) GetStats(ctx context.Context) (breathe.Stats, error) {
	return do[breathe.Stats](ctx, c, http.MethodGet, "/breathing/stats", nil)
}

func (c *Client) GetUsageStats(ctx context.Context) ([]breathe.TechniqueUsageStats, error) {
	return do[[]breathe.TechniqueUsageStats](ctx, c, http.MethodGet, "/breathing/stats/usage", nil)
}

func (c *Client) GetStreak(ctx context.Context) (breathe.StreakInfo, error) {
	return do[breathe.StreakInfo](ctx, c, http.MethodGet, "/breathing/streak", nil)
}

func (c *Client) GetCalendar(ctx context.Context, year int, month time.Month) ([]breathe.CalendarDay, error) {
	q := url.Values{}
	q.Set("year", strconv.Itoa(year))
	q.Set("month", strconv.Itoa(int(month)))
	return do[[]breathe.CalendarDay](ctx, c, http.MethodGet, withQuery("/breathing/calendar", q), nil)
}

func (c *Client) GetWidget(ctx context.Context) (breathe.WidgetData, error) {
	return do[breathe.WidgetData](ctx, c, http.MethodGet, "/breathing/widget", nil)
}

func (c *Client) GetRecommendation(ctx context.Context, mood breathe.Mood, tod breathe.TimeOfDay) (breathe.Recommendation, error) {
	q := url.Values{}
	if mood != "" {
		q.Set("mood", string(mood))
	}
	if tod != "" {
		q.Set("time_of_day", string(tod))
	}
	return do[breathe.Recommendation](ctx, c, http.MethodGet, withQuery("/breathing/recommendations", q), nil)
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func do[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var zero T

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("failed to encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return zero, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("failed to read response: %w", err)
	}
	c.l.Debug("api call", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return zero, newAPIError(resp.StatusCode, raw)
	}

	data := gjson.GetBytes(raw, "data")
	if !data.Exists() || data.Type == gjson.Null {
		return zero, nil
	}
	var out T
	if err := json.Unmarshal([]byte(data.Raw), &out); err != nil {
		return zero, fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return out, nil
}
