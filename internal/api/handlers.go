package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/msghub/internal/analytics"
	"github.com/foxzi/msghub/internal/dispatch"
	"github.com/foxzi/msghub/internal/models"
	"github.com/foxzi/msghub/internal/personalize"
	"github.com/foxzi/msghub/internal/provider"
	"github.com/foxzi/msghub/internal/ratelimit"
	"github.com/foxzi/msghub/internal/repository"
	"github.com/foxzi/msghub/internal/tracking"
)

// maxBodySize bounds dispatch request bodies
const maxBodySize = 10 << 20

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Database string `json:"database"`
	Sandbox  bool   `json:"sandbox"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error  string           `json:"error"`
	Result *dispatch.Result `json:"result,omitempty"`
}

// CampaignRequest is the request body for POST /api/v1/campaigns
type CampaignRequest struct {
	dispatch.Request
	Name          string `json:"name"`
	TargetGroupID string `json:"target_group_id,omitempty"`
}

// CampaignResponse is a campaign with rates and delivery status counts
type CampaignResponse struct {
	analytics.CampaignReport
	Deliveries map[string]int `json:"deliveries"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Version:  s.deps.Version,
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Database: "ok",
		Sandbox:  s.deps.Sandbox != nil,
	}

	status := http.StatusOK
	if s.deps.Store != nil {
		if err := s.deps.Store.DB.PingContext(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	sendJSON(w, status, resp)
}

// handleDispatch handles POST /api/v1/dispatch
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatch.Request
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	// campaigns go through /campaigns
	req.Campaign = nil

	s.dispatch(w, r, req, http.StatusOK)
}

// handleCreateCampaign handles POST /api/v1/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body CampaignRequest
	if err := decodeJSON(w, r, &body); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req := body.Request
	req.Campaign = &dispatch.CampaignOptions{Name: body.Name, TargetGroupID: body.TargetGroupID}

	s.dispatch(w, r, req, http.StatusCreated)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req dispatch.Request, okStatus int) {
	res, err := s.deps.Dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		s.writeDispatchError(w, err, res)
		return
	}
	sendJSON(w, okStatus, res)
}

// writeDispatchError maps dispatch errors onto HTTP statuses
func (s *Server) writeDispatchError(w http.ResponseWriter, err error, res *dispatch.Result) {
	switch {
	case dispatch.IsValidationError(err):
		sendError(w, http.StatusBadRequest, err.Error())
	case dispatch.AsRateLimitError(err) != nil:
		rl := dispatch.AsRateLimitError(err)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		sendError(w, http.StatusTooManyRequests, err.Error())
	case provider.IsConfigurationError(err):
		sendError(w, http.StatusUnprocessableEntity, err.Error())
	case dispatch.IsPersistenceError(err):
		s.logger.Error("dispatch results not stored", "error", err)
		sendJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Result: res})
	default:
		s.logger.Error("dispatch failed", "error", err)
		sendError(w, http.StatusInternalServerError, "Dispatch failed")
	}
}

// handleListCampaigns handles GET /api/v1/campaigns
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.CampaignFilter{
		OrganizationID: q.Get("organization_id"),
		Channel:        models.Channel(q.Get("channel")),
		Status:         q.Get("status"),
		Limit:          queryInt(r, "limit", 100, 1000),
		Offset:         queryInt(r, "offset", 0, 1000000),
	}
	if days := queryInt(r, "days", 0, 3650); days > 0 {
		filter.Since = repository.Since(days)
	}

	campaigns, err := s.deps.Store.Campaigns.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list campaigns", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to list campaigns")
		return
	}

	reports := make([]analytics.CampaignReport, len(campaigns))
	for i := range campaigns {
		reports[i] = analytics.Report(&campaigns[i])
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"campaigns": reports,
		"total":     len(reports),
	})
}

// handleGetCampaign handles GET /api/v1/campaigns/{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := s.deps.Store.Campaigns.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get campaign", "id", id, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to get campaign")
		return
	}
	if c == nil {
		sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}

	counts, err := s.deps.Store.Deliveries.CountByCampaign(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to count deliveries", "id", id, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to get campaign")
		return
	}

	sendJSON(w, http.StatusOK, CampaignResponse{
		CampaignReport: analytics.Report(c),
		Deliveries:     counts,
	})
}

// handleCancelCampaign handles POST /api/v1/campaigns/{id}/cancel
func (s *Server) handleCancelCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	ok, err := s.deps.Store.Campaigns.Transition(ctx, id, models.CampaignStatusCancelled)
	if err != nil {
		s.logger.Error("failed to cancel campaign", "id", id, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to cancel campaign")
		return
	}

	c, err := s.deps.Store.Campaigns.GetByID(ctx, id)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to get campaign")
		return
	}
	if c == nil {
		sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	if !ok {
		sendError(w, http.StatusConflict, "Campaign cannot be cancelled in status "+c.Status)
		return
	}

	s.logger.Info("campaign cancelled", "id", id)
	sendJSON(w, http.StatusOK, analytics.Report(c))
}

// handleListDeliveries handles GET /api/v1/campaigns/{id}/deliveries
func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deliveries, err := s.deps.Store.Deliveries.ListByCampaign(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to list deliveries", "id", id, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to list deliveries")
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"deliveries": deliveries,
		"total":      len(deliveries),
	})
}

// handleListLogs handles GET /api/v1/logs?organization_id=
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		sendError(w, http.StatusBadRequest, "organization_id is required")
		return
	}

	logs, err := s.deps.Store.Logs.List(r.Context(), orgID, queryInt(r, "limit", 100, 1000))
	if err != nil {
		s.logger.Error("failed to list message logs", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to list logs")
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"total": len(logs),
	})
}

// handleAnalyticsSummary handles GET /api/v1/analytics/summary
func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30, 3650)
	filter := models.CampaignFilter{
		OrganizationID: r.URL.Query().Get("organization_id"),
		Since:          repository.Since(days),
	}

	campaigns, err := s.deps.Store.Campaigns.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list campaigns", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to build summary")
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"days":    days,
		"summary": analytics.Summarize(campaigns),
	})
}

// handleVariables handles GET /api/v1/variables
func (s *Server) handleVariables(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{
		"variables": personalize.AvailableVariables(),
	})
}

// QuotaResponse is the response for GET /api/v1/organizations/{id}/quota
type QuotaResponse struct {
	OrganizationID string             `json:"organization_id"`
	Organization   *ratelimit.Stats   `json:"organization"`
	Channels       []*ratelimit.Stats `json:"channels"`
}

// handleQuota handles GET /api/v1/organizations/{id}/quota
func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	resp := QuotaResponse{OrganizationID: id}

	var err error
	resp.Organization, err = s.deps.Limiter.GetStats(ctx, ratelimit.LevelOrganization, id)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to get quota")
		return
	}
	for _, ch := range models.Channels() {
		st, err := s.deps.Limiter.GetStats(ctx, ratelimit.LevelChannel, ratelimit.ChannelKey(id, ch))
		if err != nil {
			sendError(w, http.StatusInternalServerError, "Failed to get quota")
			return
		}
		resp.Channels = append(resp.Channels, st)
	}

	sendJSON(w, http.StatusOK, resp)
}

// handleOpen handles GET /t/open/{id}
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.deps.Tracker.RecordOpen(r.Context(), id); err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			sendError(w, http.StatusNotFound, "Delivery not found")
			return
		}
		s.logger.Error("failed to record open", "delivery_id", id, "error", err)
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(tracking.Pixel())
}

// handleClick handles GET /t/click/{id}?url=
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	target := r.URL.Query().Get("url")

	redirect, err := s.deps.Tracker.RecordClick(r.Context(), id, target)
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			sendError(w, http.StatusNotFound, "Delivery not found")
			return
		}
		s.logger.Error("failed to record click", "delivery_id", id, "error", err)
		redirect = s.deps.Tracker.SafeTarget(target)
	}

	http.Redirect(w, r, redirect, http.StatusFound)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
}

func queryInt(r *http.Request, name string, def, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, ErrorResponse{Error: message})
}
