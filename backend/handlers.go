package backend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/benjamonnguyen/breathe-go"
)

// Handler serves the breathing REST API.
type Handler struct {
	service *Service
	auth    AuthConfig
	l       *log.Logger
}

func NewHandler(service *Service, auth AuthConfig, logger *log.Logger) *Handler {
	return &Handler{service: service, auth: auth, l: logger}
}

// Router builds the chi router. /healthz and /metrics are unauthenticated.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)
	r.Use(instrument)

	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/breathing", func(r chi.Router) {
		r.Use(Authenticate(h.auth))

		r.Get("/techniques", h.listTechniques)
		r.Post("/techniques", h.createTechnique)
		r.Put("/techniques/{id}", h.updateTechnique)
		r.Delete("/techniques/{id}", h.deleteTechnique)

		r.Get("/favorites", h.listFavorites)
		r.Post("/favorites/{id}", h.addFavorite)
		r.Delete("/favorites/{id}", h.removeFavorite)

		r.Get("/sessions", h.listSessions)
		r.Post("/sessions", h.startSession)
		r.Post("/sessions/{id}/complete", h.completeSession)

		r.Get("/streak", h.streak)
		r.Get("/stats", h.stats)
		r.Get("/stats/usage", h.usage)
		r.Get("/calendar", h.calendar)
		r.Get("/widget", h.widget)
		r.Get("/recommendations", h.recommendations)
	})
	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.l.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "took", time.Since(start))
	})
}

func userID(r *http.Request) string {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.Subject
}

// Techniques

func (h *Handler) listTechniques(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.service.ListTechniques(r.Context(), userID(r)))
}

func (h *Handler) createTechnique(w http.ResponseWriter, r *http.Request) {
	var in breathe.TechniqueInput
	if !decode(w, r, &in) {
		return
	}
	t, err := h.service.CreateTechnique(r.Context(), userID(r), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, t)
}

func (h *Handler) updateTechnique(w http.ResponseWriter, r *http.Request) {
	var in breathe.TechniqueInput
	if !decode(w, r, &in) {
		return
	}
	t, err := h.service.UpdateTechnique(r.Context(), userID(r), breathe.TechniqueID(chi.URLParam(r, "id")), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

func (h *Handler) deleteTechnique(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTechnique(r.Context(), userID(r), breathe.TechniqueID(chi.URLParam(r, "id"))); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Favorites

func (h *Handler) listFavorites(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.service.ListFavorites(r.Context(), userID(r)))
}

func (h *Handler) addFavorite(w http.ResponseWriter, r *http.Request) {
	h.setFavorite(w, r, true)
}

func (h *Handler) removeFavorite(w http.ResponseWriter, r *http.Request) {
	h.setFavorite(w, r, false)
}

func (h *Handler) setFavorite(w http.ResponseWriter, r *http.Request, favorite bool) {
	id := breathe.TechniqueID(chi.URLParam(r, "id"))
	if err := h.service.SetFavorite(r.Context(), userID(r), id, favorite); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sessions

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	writeData(w, http.StatusOK, h.service.ListSessions(r.Context(), userID(r), limit))
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	var req breathe.StartSessionRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.service.StartSession(r.Context(), userID(r), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	sessionsStarted.Inc()
	writeData(w, http.StatusCreated, session)
}

func (h *Handler) completeSession(w http.ResponseWriter, r *http.Request) {
	var req breathe.CompleteSessionRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.CompleteSession(r.Context(), userID(r), breathe.SessionID(chi.URLParam(r, "id")), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	recordCompletion(resp.Session.Completed, resp.Session.CompletedPercentage)
	writeData(w, http.StatusOK, resp)
}

// Aggregates

func (h *Handler) streak(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.service.Streak(r.Context(), userID(r)))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.service.Stats(r.Context(), userID(r)))
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.service.Usage(r.Context(), userID(r)))
}

func (h *Handler) calendar(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	year, month := now.Year(), int(now.Month())
	var err error
	if raw := r.URL.Query().Get("year"); raw != "" {
		if year, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "year must be an integer")
			return
		}
	}
	if raw := r.URL.Query().Get("month"); raw != "" {
		if month, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "month must be an integer")
			return
		}
	}
	days, err := h.service.Calendar(r.Context(), userID(r), year, time.Month(month))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, days)
}

func (h *Handler) widget(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.service.Widget(r.Context(), userID(r)))
}

func (h *Handler) recommendations(w http.ResponseWriter, r *http.Request) {
	mood, err := breathe.ParseMood(r.URL.Query().Get("mood"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tod, err := breathe.ParseTimeOfDay(r.URL.Query().Get("time_of_day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.service.Recommend(r.Context(), userID(r), mood, tod)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyCompleted), errors.Is(err, ErrTechniqueInUse):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrSystemTechnique):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnsupportedTarget):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.l.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeData(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, map[string]any{"data": payload})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
