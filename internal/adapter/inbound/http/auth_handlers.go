package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/evcare/portal-gate/internal/domain/auth"
	"github.com/evcare/portal-gate/internal/domain/ratelimit"
	"github.com/evcare/portal-gate/internal/domain/session"
	"github.com/evcare/portal-gate/internal/service"
)

const maxLoginBodyBytes = 1 << 20 // 1MB

// ProfileFetcher retrieves the upstream profile document for the current
// token. Only the backend login strategy provides one.
type ProfileFetcher interface {
	Profile(ctx context.Context, token string) (json.RawMessage, error)
}

// apiResponse is the envelope for all JSON endpoints, mirroring the upstream
// backend so portal pages can share response handling.
type apiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=admin staff customer"`
}

type sessionResponse struct {
	Status string         `json:"status"`
	User   *auth.Identity `json:"user,omitempty"`
	Token  string         `json:"token,omitempty"`
}

// AuthHandlers serves the login, logout, session and profile endpoints.
type AuthHandlers struct {
	auths    *service.AuthService
	limiter  ratelimit.Limiter
	limitCfg ratelimit.Config
	metrics  *Metrics
	profile  ProfileFetcher
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAuthHandlers creates the handler set. limiter and profile may be nil;
// rate limiting and the profile endpoint are then disabled.
func NewAuthHandlers(auths *service.AuthService, limiter ratelimit.Limiter, limitCfg ratelimit.Config, metrics *Metrics, profile ProfileFetcher, logger *slog.Logger) *AuthHandlers {
	return &AuthHandlers{
		auths:    auths,
		limiter:  limiter,
		limitCfg: limitCfg,
		metrics:  metrics,
		profile:  profile,
		validate: validator.New(),
		logger:   logger,
	}
}

// HandleLogin processes POST /auth/login.
func (h *AuthHandlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := LoggerFromContext(ctx)

	var req loginRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, apiResponse{Message: "invalid request body"})
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	if err := h.validate.Struct(req); err != nil {
		respondJSON(w, http.StatusBadRequest, apiResponse{Message: formatValidationError(err)})
		return
	}

	meta := service.RequestMeta{
		SourceIP:  ClientIPFromContext(ctx),
		RequestID: RequestIDFromContext(ctx),
	}

	if !h.allowAttempt(ctx, w, req.Email, meta, logger) {
		return
	}

	snapshot, err := h.auths.Login(ctx, req.Email, req.Password, auth.Role(req.Role), meta)
	if err != nil {
		h.respondLoginError(w, err, logger)
		return
	}

	h.countLogin("success")
	if h.metrics != nil {
		h.metrics.SessionAuthenticated.Set(1)
	}
	token := h.auths.Token()
	respondJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data: sessionResponse{
			Status: string(snapshot.Status),
			User:   snapshot.Identity,
			Token:  token,
		},
	})
}

// allowAttempt runs the IP and email rate limit checks. It writes the 429
// response itself and returns false when the attempt is denied. Keying on
// both means spreading attempts on one account across addresses buys
// nothing, and hammering many accounts from one address still gets caught.
func (h *AuthHandlers) allowAttempt(ctx context.Context, w http.ResponseWriter, email string, meta service.RequestMeta, logger *slog.Logger) bool {
	if h.limiter == nil {
		return true
	}

	keys := []string{
		ratelimit.FormatKey(ratelimit.KeyTypeIP, meta.SourceIP),
		ratelimit.FormatKey(ratelimit.KeyTypeEmail, strings.ToLower(email)),
	}
	for _, key := range keys {
		result, err := h.limiter.Allow(ctx, key, h.limitCfg)
		if err != nil {
			// A broken limiter must not lock everyone out.
			logger.Warn("rate limiter error, allowing attempt", "error", err)
			return true
		}
		if !result.Allowed {
			logger.Info("login rate limited",
				"email", email,
				"source_ip", meta.SourceIP,
				"retry_after", result.RetryAfter,
			)
			h.auths.RecordRateLimited(email, meta)
			h.countLogin("rate_limited")
			seconds := int(math.Ceil(result.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			respondJSON(w, http.StatusTooManyRequests, apiResponse{
				Message: "too many login attempts, try again later",
			})
			return false
		}
	}
	return true
}

func (h *AuthHandlers) respondLoginError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, service.ErrLoginInFlight):
		h.countLogin("conflict")
		respondJSON(w, http.StatusConflict, apiResponse{Message: "another login is in progress"})

	case errors.Is(err, auth.ErrInvalidCredentials):
		h.countLogin("invalid")
		respondJSON(w, http.StatusUnauthorized, apiResponse{Message: "incorrect email or password"})

	case errors.Is(err, auth.ErrServiceUnavailable):
		h.countLogin("unavailable")
		respondJSON(w, http.StatusServiceUnavailable, apiResponse{Message: "authentication service unavailable"})

	default:
		logger.Error("login failed", "error", err)
		h.countLogin("error")
		respondJSON(w, http.StatusInternalServerError, apiResponse{Message: "internal error"})
	}
}

// HandleLogout processes POST /auth/logout. The session clears even when the
// upstream notification fails, so the response is 204 in the common case.
func (h *AuthHandlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meta := service.RequestMeta{
		SourceIP:  ClientIPFromContext(ctx),
		RequestID: RequestIDFromContext(ctx),
	}

	if err := h.auths.Logout(ctx, meta); err != nil {
		LoggerFromContext(ctx).Error("logout failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, apiResponse{Message: "internal error"})
		return
	}

	if h.metrics != nil {
		h.metrics.SessionAuthenticated.Set(0)
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSession processes GET /auth/session. It always answers 200; the
// status field tells the caller whether anyone is signed in.
func (h *AuthHandlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	snapshot := h.auths.Current()
	respondJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data: sessionResponse{
			Status: string(snapshot.Status),
			User:   snapshot.Identity,
		},
	})
}

// HandleProfile processes GET /auth/profile. With a backend strategy the
// upstream profile document is passed through; otherwise the stored identity
// is returned.
func (h *AuthHandlers) HandleProfile(w http.ResponseWriter, r *http.Request) {
	snapshot := h.auths.Current()
	if snapshot.Status != session.StatusAuthenticated {
		respondJSON(w, http.StatusUnauthorized, apiResponse{Message: "not signed in"})
		return
	}

	if h.profile == nil {
		respondJSON(w, http.StatusOK, apiResponse{Success: true, Data: snapshot.Identity})
		return
	}

	raw, err := h.profile.Profile(r.Context(), h.auths.Token())
	if err != nil {
		LoggerFromContext(r.Context()).Warn("profile fetch failed", "error", err)
		respondJSON(w, http.StatusBadGateway, apiResponse{Message: "profile unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, apiResponse{Success: true, Data: raw})
}

func (h *AuthHandlers) countLogin(result string) {
	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues(result).Inc()
	}
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// formatValidationError turns the first validator error into a message a
// portal page can show directly.
func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return "email must be a valid address"
	case "oneof":
		return field + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return field + " is invalid"
	}
}
