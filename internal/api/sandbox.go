package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/msghub/internal/models"
	"github.com/foxzi/msghub/internal/sandbox"
)

// registerSandboxRoutes registers sandbox API routes
func (s *Server) registerSandboxRoutes(r chi.Router) {
	r.Route("/sandbox", func(r chi.Router) {
		r.Get("/messages", s.handleSandboxList)
		r.Get("/messages/{id}", s.handleSandboxGet)
		r.Delete("/messages", s.handleSandboxClear)
		r.Delete("/messages/{id}", s.handleSandboxDelete)
		r.Get("/stats", s.handleSandboxStats)
	})
}

// SandboxListResponse is the response for GET /api/v1/sandbox/messages
type SandboxListResponse struct {
	Messages []*sandbox.Message `json:"messages"`
	Total    int                `json:"total"`
}

// handleSandboxList handles GET /api/v1/sandbox/messages
func (s *Server) handleSandboxList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := sandbox.ListFilter{
		OrganizationID: q.Get("organization_id"),
		Channel:        models.Channel(q.Get("channel")),
		Provider:       q.Get("provider"),
		Limit:          queryInt(r, "limit", 100, 1000),
		Offset:         queryInt(r, "offset", 0, 1000000),
	}

	messages, err := s.deps.Sandbox.List(r.Context(), filter)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	if messages == nil {
		messages = []*sandbox.Message{}
	}

	sendJSON(w, http.StatusOK, SandboxListResponse{Messages: messages, Total: len(messages)})
}

// handleSandboxGet handles GET /api/v1/sandbox/messages/{id}
func (s *Server) handleSandboxGet(w http.ResponseWriter, r *http.Request) {
	msg, err := s.deps.Sandbox.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to get message")
		return
	}
	if msg == nil {
		sendError(w, http.StatusNotFound, "Message not found")
		return
	}
	sendJSON(w, http.StatusOK, msg)
}

// handleSandboxDelete handles DELETE /api/v1/sandbox/messages/{id}
func (s *Server) handleSandboxDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sandbox.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to delete message")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSandboxClear handles DELETE /api/v1/sandbox/messages?channel=&older_than=
func (s *Server) handleSandboxClear(w http.ResponseWriter, r *http.Request) {
	channel := models.Channel(r.URL.Query().Get("channel"))

	var olderThan time.Duration
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			sendError(w, http.StatusBadRequest, "Invalid older_than format (use Go duration: 24h, 30m)")
			return
		}
		olderThan = d
	}

	count, err := s.deps.Sandbox.Clear(r.Context(), channel, olderThan)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to clear messages")
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{"cleared": count})
}

// handleSandboxStats handles GET /api/v1/sandbox/stats
func (s *Server) handleSandboxStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Sandbox.Stats(r.Context())
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}
	sendJSON(w, http.StatusOK, stats)
}
