// Package admin exposes the rate limiter's block and whitelist state to
// administrators.
package admin

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	platformmw "github.com/bulletdrop/analytics/internal/platform/middleware"
	"github.com/bulletdrop/analytics/internal/ratelimit/service"
	"github.com/bulletdrop/analytics/pkg/platform/httputil"
)

// Handler serves the admin endpoints.
type Handler struct {
	service *service.Service
	logger  *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: svc, logger: logger}
}

// Routes mounts the admin endpoints. The caller wraps them in
// RequireAuth and RequireAdmin.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/blocked-ips", h.listBlocked)
	r.Post("/block-ip", h.blockIP)
	r.Delete("/unblock-ip/{ip}", h.unblockIP)
	r.Get("/whitelist", h.listWhitelist)
	r.Post("/whitelist", h.addWhitelist)
	r.Delete("/whitelist/{ip}", h.removeWhitelist)
}

func (h *Handler) listBlocked(w http.ResponseWriter, r *http.Request) {
	blocked, err := h.service.BlockedIPs(r.Context())
	if err != nil {
		h.writeError(w, r, err, "list blocked ips")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"blocked_ips": blocked})
}

type blockRequest struct {
	IP              string `json:"ip"`
	Reason          string `json:"reason"`
	DurationSeconds int    `json:"duration_seconds"`
}

func (h *Handler) blockIP(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_body", "Request body must be JSON")
		return
	}
	if !validIP(req.IP) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_ip", "ip must be a valid IP address")
		return
	}

	if err := h.service.BlockIP(r.Context(), req.IP, req.Reason, time.Duration(req.DurationSeconds)*time.Second); err != nil {
		h.writeError(w, r, err, "block ip")
		return
	}
	h.logger.InfoContext(r.Context(), "ip blocked by admin",
		"admin_user_id", platformmw.GetUserID(r.Context()),
		"reason", req.Reason,
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "blocked"})
}

func (h *Handler) unblockIP(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if !validIP(ip) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_ip", "ip must be a valid IP address")
		return
	}

	if err := h.service.UnblockIP(r.Context(), ip); err != nil {
		h.writeError(w, r, err, "unblock ip")
		return
	}
	h.logger.InfoContext(r.Context(), "ip unblocked by admin",
		"admin_user_id", platformmw.GetUserID(r.Context()),
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "unblocked"})
}

func (h *Handler) listWhitelist(w http.ResponseWriter, r *http.Request) {
	ips, err := h.service.Whitelisted(r.Context())
	if err != nil {
		h.writeError(w, r, err, "list whitelist")
		return
	}
	if ips == nil {
		ips = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"whitelisted_ips": ips})
}

type whitelistRequest struct {
	IP string `json:"ip"`
}

func (h *Handler) addWhitelist(w http.ResponseWriter, r *http.Request) {
	var req whitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_body", "Request body must be JSON")
		return
	}
	if !validIP(req.IP) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_ip", "ip must be a valid IP address")
		return
	}

	if err := h.service.Whitelist(r.Context(), req.IP); err != nil {
		h.writeError(w, r, err, "add whitelist")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "whitelisted"})
}

func (h *Handler) removeWhitelist(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if !validIP(ip) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_ip", "ip must be a valid IP address")
		return
	}

	if err := h.service.Unwhitelist(r.Context(), ip); err != nil {
		h.writeError(w, r, err, "remove whitelist")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	h.logger.ErrorContext(r.Context(), "rate limit admin request failed",
		"op", op,
		"error", err,
		"request_id", platformmw.GetRequestID(r.Context()),
	)
	httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "")
}

func validIP(s string) bool {
	return net.ParseIP(s) != nil
}
