// Package api provides the local HTTP server the UI shell talks to.
// Every route delegates to the facade; the server holds no state of its
// own.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waveline-app/waveline/internal/app/facade"
	"github.com/waveline-app/waveline/internal/domain"
)

// Server is the local HTTP API server.
type Server struct {
	core           *facade.Facade
	metricsEnabled bool
}

// NewServer creates a new API server over the facade.
func NewServer(core *facade.Facade) *Server {
	return &Server{core: core}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/sync", s.handleSync)
		r.Post("/network", s.handleNetwork)
		r.Get("/queue", s.handleQueue)
		r.Get("/queue/deadletter", s.handleDeadLetter)
		r.Get("/feed", s.handleFeed)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/ledger/{userID}", s.handleLedger)
		r.Post("/posts", s.handleCreatePost)
		r.Post("/posts/{postID}/like", s.handleLikePost)
		r.Post("/posts/{postID}/comments", s.handleAddComment)
		r.Post("/messages", s.handleSendMessage)
		r.Post("/xp", s.handleAwardXP)
		r.Put("/profile/{userID}", s.handleUpdateProfile)
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Status & Sync ──────────────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.SyncStatus())
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := s.core.ForceSync(r.Context()); err != nil {
		if err == domain.ErrOffline {
			writeError(w, http.StatusServiceUnavailable, "offline")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.core.SyncStatus())
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	var state domain.NetworkState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.core.SetNetworkState(state)
	writeJSON(w, http.StatusOK, s.core.SyncStatus())
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	actions, err := s.core.PendingActions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(actions),
		"actions": actions,
	})
}

func (s *Server) handleDeadLetter(w http.ResponseWriter, r *http.Request) {
	entries, err := s.core.DeadLetters()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

// ─── Reads ──────────────────────────────────────────────────────────────────

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	docs, err := s.core.Feed(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"posts": docs,
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	docs, err := s.core.Leaderboard(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": docs,
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	l, err := s.core.Ledger(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*domain.Ledger
		NextLevelXP int64 `json:"next_level_xp"` // -1 at the top of the table
	}{l, s.core.NextLevelXP(l.Level)})
}

// ─── Writes ─────────────────────────────────────────────────────────────────

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID  string `json:"actor_id"`
		Body     string `json:"body"`
		ImageURL string `json:"image_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "actor_id and body are required")
		return
	}

	post, err := s.core.CreatePost(r.Context(), req.ActorID, req.Body, req.ImageURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleLikePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID string `json:"actor_id"`
		Liked   bool   `json:"liked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}

	queued, err := s.core.LikePost(r.Context(), req.ActorID, chi.URLParam(r, "postID"), req.Liked)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queued": queued,
	})
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID string `json:"actor_id"`
		Body    string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "actor_id and body are required")
		return
	}

	comment, err := s.core.AddComment(r.Context(), req.ActorID, chi.URLParam(r, "postID"), req.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID     string `json:"actor_id"`
		RecipientID string `json:"recipient_id"`
		Body        string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID == "" || req.RecipientID == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "actor_id, recipient_id and body are required")
		return
	}

	msg, err := s.core.SendMessage(r.Context(), req.ActorID, req.RecipientID, req.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleAwardXP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID string `json:"actor_id"`
		Amount  int64  `json:"amount"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}

	res, queued, err := s.core.AwardXP(r.Context(), req.ActorID, req.Amount, req.Reason)
	if err != nil {
		if err == domain.ErrNegativeXP {
			writeError(w, http.StatusBadRequest, "amount must be non-negative")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queued": queued,
		"result": res,
	})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch domain.UpdateProfilePayload
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	queued, err := s.core.UpdateProfile(r.Context(), chi.URLParam(r, "userID"), patch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queued": queued,
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}
