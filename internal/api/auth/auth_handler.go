package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alxtim10/alx-auth/internal/api"
)

// AuthHandler handles HTTP requests for authentication operations.
type AuthHandler struct {
	authService AuthService
	logger      *slog.Logger
	// devTokens controls whether one-time tokens are echoed back in
	// acknowledgements instead of being delivered out of band.
	devTokens bool
}

func NewAuthHandler(authService AuthService, devTokens bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
		devTokens:   devTokens,
	}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("handler", "Register"))

	var req RegisterRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	u, err := h.authService.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, api.ErrConflict) {
			api.ErrorResponse(w, r, http.StatusConflict, "Username or email already exists")
			return
		}
		api.ErrorFromDomain(w, r, err)
		return
	}

	l.InfoContext(r.Context(), "User registered", slog.String("username", u.Username))
	api.WriteJSONResponse(w, r, http.StatusCreated, map[string]string{
		"id":       u.ID.String(),
		"username": u.Username,
		"email":    u.Email,
	})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	access, refresh, err := h.authService.Login(r.Context(), req.Username, req.Password, deviceOf(r), ipOf(r))
	if err != nil {
		if errors.Is(err, api.ErrUnauthenticated) {
			// Same body for unknown user, wrong password and disabled account.
			api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		api.ErrorFromDomain(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
	})
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}

	access, refresh, err := h.authService.Refresh(r.Context(), req.RefreshToken, deviceOf(r), ipOf(r))
	if err != nil {
		if errors.Is(err, api.ErrUnauthenticated) {
			api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid or expired refresh token")
			return
		}
		api.ErrorFromDomain(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
	})
}

// Logout handles POST /auth/logout. Always succeeds so a client cannot
// learn whether the presented token was live.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.authService.Logout(r.Context(), req.RefreshToken); err != nil {
		api.ErrorFromDomain(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, AckResponse{Message: "Logged out"})
}

// RequestEmailVerification handles POST /auth/verify-email/request.
func (h *AuthHandler) RequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	h.requestOneTimeToken(w, r, h.authService.RequestEmailVerification,
		"If the email exists, a verification message has been sent")
}

// VerifyEmail handles POST /auth/verify-email.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "token is required")
		return
	}

	if err := h.authService.VerifyEmail(r.Context(), req.Token); err != nil {
		api.ErrorFromDomain(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, AckResponse{Message: "Email verified"})
}

// ForgotPassword handles POST /auth/forgot-password.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	h.requestOneTimeToken(w, r, h.authService.RequestPasswordReset,
		"If the email exists, a reset message has been sent")
}

// ResetPassword handles POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// ErrorFromDomain keeps the service's message, so a weak new
	// password and a dead token produce distinct 400 bodies.
	if err := h.authService.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		api.ErrorFromDomain(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, AckResponse{Message: "Password has been reset"})
}

// ChangePassword handles POST /auth/change-password. Requires a valid
// access token; the subject comes from the JWT, never from the body.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.authService.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		api.ErrorFromDomain(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, AckResponse{Message: "Password changed"})
}

// requestOneTimeToken is the shared body of the two enumeration-safe
// token request endpoints.
func (h *AuthHandler) requestOneTimeToken(w http.ResponseWriter, r *http.Request, issue func(ctx context.Context, email string) (string, error), ack string) {
	var req EmailRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	raw, err := issue(r.Context(), req.Email)
	if err != nil {
		api.ErrorFromDomain(w, r, err)
		return
	}

	resp := AckResponse{Message: ack}
	if h.devTokens {
		resp.Token = raw
	}
	api.WriteJSONResponse(w, r, http.StatusOK, resp)
}

func deviceOf(r *http.Request) string {
	return r.Header.Get("User-Agent")
}

func ipOf(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	return r.RemoteAddr
}
