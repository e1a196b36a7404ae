// Package handler exposes the consent and profile endpoints under
// /api/v1/users/me. All routes require a valid bearer token; the consent
// write path is additionally rate limited per client IP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mssola/useragent"

	"othertales/internal/identity/service"
	"othertales/internal/platform/middleware"
	"othertales/internal/profile"
	"othertales/pkg/domain"
	dErrors "othertales/pkg/domain-errors"
	"othertales/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mock_service.go -package=mocks

// Service defines the identity operations the handler needs.
type Service interface {
	UpdateConsent(ctx context.Context, userID domain.UserID, consentType domain.ConsentType, granted bool, ipAddress, userAgent string) (*service.UpdateResult, error)
	CurrentConsents(ctx context.Context, userID domain.UserID, email, displayName string) ([]profile.ConsentSnapshot, error)
	ConsentHistory(ctx context.Context, userID domain.UserID) ([]service.HistoryEntry, error)
	Profile(ctx context.Context, userID domain.UserID, email, displayName string) (*profile.Profile, error)
}

// Handler handles the authenticated /users/me endpoints.
type Handler struct {
	logger       *slog.Logger
	identity     Service
	jwtValidator middleware.JWTValidator
	writeLimit   func(http.Handler) http.Handler
}

// New creates the identity Handler. writeLimit may be nil to disable rate
// limiting on the consent write path.
func New(identity Service, logger *slog.Logger, jwtValidator middleware.JWTValidator, writeLimit func(http.Handler) http.Handler) *Handler {
	return &Handler{
		logger:       logger,
		identity:     identity,
		jwtValidator: jwtValidator,
		writeLimit:   writeLimit,
	}
}

// Register mounts the identity routes on the given router.
func (h *Handler) Register(r chi.Router) {
	me := chi.NewRouter()
	me.Use(middleware.Recovery(h.logger))
	me.Use(middleware.RequestID)
	me.Use(middleware.Logger(h.logger))
	me.Use(middleware.Timeout(30 * time.Second))
	me.Use(middleware.ClientMetadata)
	me.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	me.Get("/consents", h.handleGetConsents)
	me.Get("/consents/history", h.handleGetConsentHistory)
	me.Get("/profile", h.handleGetProfile)
	if h.writeLimit != nil {
		me.With(h.writeLimit).Post("/consents", h.handleUpdateConsent)
	} else {
		me.Post("/consents", h.handleUpdateConsent)
	}

	r.Mount("/api/v1/users/me", me)
}

type updateConsentRequest struct {
	ConsentType string `json:"consent_type"`
	Granted     *bool  `json:"granted"`
}

type consentResponse struct {
	ConsentType string     `json:"consent_type"`
	Granted     bool       `json:"granted"`
	ChangedAt   *time.Time `json:"changed_at,omitempty"`
}

type updateConsentResponse struct {
	ConsentType string    `json:"consent_type"`
	Granted     bool      `json:"granted"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type historyEntryResponse struct {
	ConsentType string    `json:"consent_type"`
	Granted     bool      `json:"granted"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type profileResponse struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	DisplayName string            `json:"display_name"`
	AvatarURL   string            `json:"avatar_url,omitempty"`
	Plan        string            `json:"plan"`
	Consents    []consentResponse `json:"consents"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// handleUpdateConsent applies one consent change for the authenticated user.
func (h *Handler) handleUpdateConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	userID, err := h.authedUserID(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "userID missing from context despite auth middleware",
			"request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	var req updateConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid consent update request",
			"request_id", requestID,
			"error", err.Error())
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Granted == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "granted is required"))
		return
	}
	consentType, err := domain.ParseConsentType(req.ConsentType)
	if err != nil {
		h.logger.WarnContext(ctx, "unknown consent type",
			"request_id", requestID,
			"consent_type", req.ConsentType)
		httputil.WriteError(w, err)
		return
	}

	ip := middleware.GetClientIP(ctx)
	ua := middleware.GetUserAgent(ctx)

	result, err := h.identity.UpdateConsent(ctx, userID, consentType, *req.Granted, ip, ua)
	if err != nil {
		switch {
		case dErrors.HasCode(err, dErrors.CodeConflict):
			h.logger.WarnContext(ctx, "consent update conflict",
				"request_id", requestID,
				"user_id", userID.String())
			httputil.WriteError(w, err)
		case dErrors.HasCode(err, dErrors.CodeNotFound), dErrors.HasCode(err, dErrors.CodeValidation):
			httputil.WriteError(w, err)
		default:
			h.logger.ErrorContext(ctx, "consent update failed",
				"request_id", requestID,
				"error", err.Error())
			httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to update consent"))
		}
		return
	}

	h.logger.InfoContext(ctx, "consent updated",
		"request_id", requestID,
		"user_id", userID.String(),
		"consent_type", string(consentType),
		"granted", *req.Granted,
		"client", summarizeUserAgent(ua))

	httputil.WriteJSON(w, http.StatusOK, updateConsentResponse{
		ConsentType: string(result.ConsentType),
		Granted:     result.Granted,
		RecordedAt:  result.RecordedAt,
	})
}

// handleGetConsents returns the state of every trackable consent type.
func (h *Handler) handleGetConsents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := h.authedUserID(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	snapshots, err := h.identity.CurrentConsents(ctx, userID, middleware.GetUserEmail(ctx), middleware.GetUserName(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "list consents failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error())
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list consents"))
		return
	}

	out := make([]consentResponse, 0, len(snapshots))
	for _, snap := range snapshots {
		out = append(out, consentResponse{
			ConsentType: string(snap.ConsentType),
			Granted:     snap.Granted,
			ChangedAt:   snap.ChangedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"consents": out})
}

// handleGetConsentHistory returns the append-only change log, most recent first.
func (h *Handler) handleGetConsentHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := h.authedUserID(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.identity.ConsentHistory(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "list consent history failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error())
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list consent history"))
		return
	}

	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{
			ConsentType: string(e.ConsentType),
			Granted:     e.Granted,
			RecordedAt:  e.RecordedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"history": out})
}

// handleGetProfile returns the authenticated user's profile.
func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := h.authedUserID(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := h.identity.Profile(ctx, userID, middleware.GetUserEmail(ctx), middleware.GetUserName(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "load profile failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error())
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to load profile"))
		return
	}

	consents := make([]consentResponse, 0)
	for _, snap := range p.Snapshot() {
		consents = append(consents, consentResponse{
			ConsentType: string(snap.ConsentType),
			Granted:     snap.Granted,
			ChangedAt:   snap.ChangedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, profileResponse{
		ID:          p.ID.String(),
		Email:       p.Email,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Plan:        string(p.Plan),
		Consents:    consents,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	})
}

func (h *Handler) authedUserID(ctx context.Context) (domain.UserID, error) {
	raw := middleware.GetUserID(ctx)
	if raw == "" {
		return domain.UserID{}, dErrors.New(dErrors.CodeInternal, "authentication context error")
	}
	userID, err := domain.ParseUserID(raw)
	if err != nil {
		return domain.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid subject claim")
	}
	return userID, nil
}

// summarizeUserAgent condenses a raw User-Agent header into a short
// browser/platform label for log lines.
func summarizeUserAgent(raw string) string {
	if raw == "" {
		return "unknown"
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	if version == "" {
		return name
	}
	return name + "/" + version
}
