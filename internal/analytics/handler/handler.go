package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bulletdrop/analytics/internal/analytics/models"
	"github.com/bulletdrop/analytics/internal/analytics/service"
	"github.com/bulletdrop/analytics/internal/analytics/store"
	platformmw "github.com/bulletdrop/analytics/internal/platform/middleware"
	"github.com/bulletdrop/analytics/pkg/platform/httputil"
)

// Handler exposes the analytics HTTP surface.
type Handler struct {
	service   *service.Service
	directory store.ContentDirectory
	logger    *slog.Logger
}

func New(svc *service.Service, directory store.ContentDirectory, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: svc, directory: directory, logger: logger}
}

// Routes mounts the public analytics endpoints. Authentication is
// optional on the recording endpoints and enforced per-handler on the
// read endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/views/file/{uploadID}", h.recordFileView)
	r.Post("/views/profile/{userID}", h.recordProfileView)
	r.Get("/views/file/{uploadID}", h.fileAnalytics)
	r.Get("/views/profile/{userID}", h.profileAnalytics)
	r.Get("/trending", h.trending)
	r.Get("/stats/{contentType}/{contentID}", h.quickStats)
}

// AdminRoutes mounts the admin-only endpoints. The caller wraps them in
// RequireAuth and RequireAdmin.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/overview", h.adminOverview)
}

func (h *Handler) recordFileView(w http.ResponseWriter, r *http.Request) {
	uploadID, ok := pathID(w, r, "uploadID")
	if !ok {
		return
	}
	event, ok := decodeViewEvent(w, r)
	if !ok {
		return
	}

	view, err := h.service.RecordFileView(r.Context(), uploadID, event)
	if err != nil {
		h.writeServiceError(w, r, err, "record file view")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) recordProfileView(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	event, ok := decodeViewEvent(w, r)
	if !ok {
		return
	}

	view, err := h.service.RecordProfileView(r.Context(), userID, event)
	if err != nil {
		h.writeServiceError(w, r, err, "record profile view")
		return
	}
	if view == nil {
		// Self-view or duplicate. Reported as recorded so clients need no
		// special handling.
		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"recorded": false})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) fileAnalytics(w http.ResponseWriter, r *http.Request) {
	uploadID, ok := pathID(w, r, "uploadID")
	if !ok {
		return
	}

	owner, err := h.directory.UploadOwner(r.Context(), uploadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "not_found", "Upload not found")
			return
		}
		h.writeServiceError(w, r, err, "resolve upload owner")
		return
	}
	if !h.authorize(w, r, owner) {
		return
	}

	analytics, err := h.service.Analytics(r.Context(), models.ContentFile, uploadID)
	if err != nil {
		h.writeServiceError(w, r, err, "file analytics")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, analytics)
}

func (h *Handler) profileAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	exists, err := h.directory.UserExists(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err, "check profile user")
		return
	}
	if !exists {
		httputil.WriteError(w, http.StatusNotFound, "not_found", "User not found")
		return
	}
	if !h.authorize(w, r, userID) {
		return
	}

	analytics, err := h.service.Analytics(r.Context(), models.ContentProfile, userID)
	if err != nil {
		h.writeServiceError(w, r, err, "profile analytics")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, analytics)
}

func (h *Handler) trending(w http.ResponseWriter, r *http.Request) {
	period := models.Period24h
	if raw := r.URL.Query().Get("time_period"); raw != "" {
		period = models.TimePeriod(raw)
		if !period.IsValid() {
			httputil.WriteError(w, http.StatusBadRequest, "invalid_time_period",
				"time_period must be one of 24h, 7d, 30d")
			return
		}
	}

	trending, err := h.service.Trending(r.Context(), period)
	if err != nil {
		h.writeServiceError(w, r, err, "trending")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, trending)
}

func (h *Handler) quickStats(w http.ResponseWriter, r *http.Request) {
	ct := models.ContentType(chi.URLParam(r, "contentType"))
	if !ct.IsValid() {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_content_type",
			"content type must be file or profile")
		return
	}
	contentID, ok := pathID(w, r, "contentID")
	if !ok {
		return
	}

	stats, err := h.service.QuickStats(r.Context(), ct, contentID)
	if err != nil {
		h.writeServiceError(w, r, err, "quick stats")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) adminOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.AdminOverview(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "admin overview")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, overview)
}

// authorize allows the content owner and admins through.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, ownerID int64) bool {
	userID := platformmw.GetUserID(r.Context())
	if userID == 0 {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return false
	}
	if userID != ownerID && !platformmw.IsAdmin(r.Context()) {
		httputil.WriteError(w, http.StatusForbidden, "forbidden", "Not the content owner")
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	if errors.Is(err, service.ErrNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "not_found", "Content not found")
		return
	}
	h.logger.ErrorContext(r.Context(), "analytics request failed",
		"op", op,
		"error", err,
		"request_id", platformmw.GetRequestID(r.Context()),
	)
	httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "")
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_id", "Path ID must be a positive integer")
		return 0, false
	}
	return id, true
}

// decodeViewEvent tolerates an empty body: browsers often fire view
// beacons with no payload.
func decodeViewEvent(w http.ResponseWriter, r *http.Request) (models.ViewEvent, bool) {
	var event models.ViewEvent
	if r.Body == nil || r.ContentLength == 0 {
		return event, true
	}
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_body", "Request body must be JSON")
		return event, false
	}
	return event, true
}
