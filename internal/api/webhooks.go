package api

import (
	"errors"
	"net/http"
	"strings"

	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/foxzi/msghub/internal/tracking"
)

// StatusWebhookRequest is a provider-neutral delivery receipt
type StatusWebhookRequest struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleTwilioStatus handles POST /webhooks/twilio/status (Twilio StatusCallback)
func (s *Server) handleTwilioStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid form body")
		return
	}

	if s.deps.TwilioAuthToken != "" && !s.validTwilioSignature(r) {
		s.logger.Warn("rejected twilio webhook with bad signature", "remote_addr", r.RemoteAddr)
		sendError(w, http.StatusForbidden, "Invalid signature")
		return
	}

	status := r.PostForm.Get("MessageStatus")
	if status == "" {
		status = r.PostForm.Get("SmsStatus")
	}

	s.applyStatus(w, r, StatusWebhookRequest{
		MessageID: r.PostForm.Get("MessageSid"),
		Status:    status,
		ErrorCode: r.PostForm.Get("ErrorCode"),
		Error:     r.PostForm.Get("ErrorMessage"),
	})
}

func (s *Server) validTwilioSignature(r *http.Request) bool {
	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	url := strings.TrimRight(s.deps.PublicURL, "/") + r.URL.RequestURI()
	validator := twilioclient.NewRequestValidator(s.deps.TwilioAuthToken)
	return validator.Validate(url, params, r.Header.Get("X-Twilio-Signature"))
}

// handleStatusWebhook handles POST /webhooks/status
func (s *Server) handleStatusWebhook(w http.ResponseWriter, r *http.Request) {
	var req StatusWebhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.applyStatus(w, r, req)
}

func (s *Server) applyStatus(w http.ResponseWriter, r *http.Request, req StatusWebhookRequest) {
	if req.MessageID == "" || req.Status == "" {
		sendError(w, http.StatusBadRequest, "message_id and status are required")
		return
	}
	if tracking.NormalizeStatus(req.Status) == "" {
		sendError(w, http.StatusBadRequest, "Unknown status "+req.Status)
		return
	}

	changed, err := s.deps.Tracker.RecordStatus(r.Context(), req.MessageID, req.Status, req.ErrorCode, req.Error)
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			sendError(w, http.StatusNotFound, "Delivery not found")
			return
		}
		s.logger.Error("failed to record delivery status", "message_id", req.MessageID, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to record status")
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"updated": changed,
	})
}
