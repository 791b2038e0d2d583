package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/alxtim10/alx-auth/config"
	"github.com/alxtim10/alx-auth/internal/api"
	"github.com/alxtim10/alx-auth/internal/api/audit"
)

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthService orchestrates the authentication state machine: login
// opens a session, refresh rotates it, logout and password changes
// revoke it.
type AuthService interface {
	// Register creates a new user with a hashed password.
	Register(ctx context.Context, username, email, password string) (*api.User, error)

	// Login authenticates a user and returns access and refresh tokens.
	// Unknown username, inactive account and wrong password are
	// indistinguishable to the caller.
	Login(ctx context.Context, username, password, device, ip string) (string, string, error)

	// Refresh rotates a session: the presented refresh token is revoked
	// and a new access/refresh pair is returned. A stale token always
	// fails, also when presented concurrently with its first rotation.
	Refresh(ctx context.Context, rawToken, device, ip string) (string, string, error)

	// Logout revokes the session. Idempotent; never reports whether the
	// token existed.
	Logout(ctx context.Context, rawToken string) error

	// RequestEmailVerification issues an EMAIL_VERIFY token. Returns the
	// raw token, or "" when the email is unknown or already verified
	// (the caller must answer identically either way).
	RequestEmailVerification(ctx context.Context, email string) (string, error)

	// VerifyEmail consumes an EMAIL_VERIFY token and stamps the user.
	VerifyEmail(ctx context.Context, rawToken string) error

	// RequestPasswordReset issues a PASSWORD_RESET token, "" for
	// unknown emails.
	RequestPasswordReset(ctx context.Context, email string) (string, error)

	// ResetPassword consumes a PASSWORD_RESET token, replaces the
	// password hash and revokes every session of the owner.
	ResetPassword(ctx context.Context, rawToken, newPassword string) error

	// ChangePassword re-proves the old password, replaces the hash and
	// revokes every session of the user.
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
}

type AuthServiceImpl struct {
	logger *slog.Logger
	repo   AuthRepo
	issuer *TokenIssuer
	audit  audit.Recorder
	tokens config.TokensConfig
}

func NewAuthService(repo AuthRepo, issuer *TokenIssuer, recorder audit.Recorder, tokens config.TokensConfig, logger *slog.Logger) *AuthServiceImpl {
	if tokens.RefreshTokenTTL <= 0 {
		tokens.RefreshTokenTTL = 14 * 24 * time.Hour
	}
	if tokens.VerifyTokenTTL <= 0 {
		tokens.VerifyTokenTTL = 24 * time.Hour
	}
	if tokens.ResetTokenTTL <= 0 {
		tokens.ResetTokenTTL = 30 * time.Minute
	}
	if tokens.MinPasswordLength <= 0 {
		tokens.MinPasswordLength = MinPasswordLength
	}
	return &AuthServiceImpl{
		logger: logger,
		repo:   repo,
		issuer: issuer,
		audit:  recorder,
		tokens: tokens,
	}
}

func (s *AuthServiceImpl) Register(ctx context.Context, username, email, password string) (*api.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required: %w", api.ErrValidation)
	}
	if len(password) < s.tokens.MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters: %w", s.tokens.MinPasswordLength, api.ErrValidation)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u, err := s.repo.CreateUser(ctx, username, email, string(hashed))
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "User registered", slog.String("username", username))
	return u, nil
}

func (s *AuthServiceImpl) Login(ctx context.Context, username, password, device, ip string) (string, string, error) {
	u, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil || !u.CanAuthenticate() ||
		bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		// One failure for all three cases so callers cannot probe for
		// valid usernames.
		return "", "", fmt.Errorf("invalid credentials: %w", api.ErrUnauthenticated)
	}

	accessToken, err := s.issuer.Issue(u.ID, u.Username, u.Role)
	if err != nil {
		return "", "", err
	}

	rawRefresh := newOpaqueToken()
	expiresAt := time.Now().Add(s.tokens.RefreshTokenTTL)
	if err := s.repo.StoreSessionToken(ctx, u.ID, hashToken(rawRefresh), device, ip, expiresAt); err != nil {
		return "", "", err
	}

	return accessToken, rawRefresh, nil
}

func (s *AuthServiceImpl) Refresh(ctx context.Context, rawToken, device, ip string) (string, string, error) {
	newRaw := newOpaqueToken()
	expiresAt := time.Now().Add(s.tokens.RefreshTokenTTL)

	u, err := s.repo.RotateSessionToken(ctx, hashToken(rawToken), hashToken(newRaw), device, ip, expiresAt)
	if err != nil {
		return "", "", err
	}
	if !u.CanAuthenticate() {
		// The rotation predicate already checks this; the user may still
		// have been deactivated between lookup and now.
		return "", "", fmt.Errorf("invalid session: %w", api.ErrUnauthenticated)
	}

	accessToken, err := s.issuer.Issue(u.ID, u.Username, u.Role)
	if err != nil {
		return "", "", err
	}
	return accessToken, newRaw, nil
}

func (s *AuthServiceImpl) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	return s.repo.RevokeSessionToken(ctx, hashToken(rawToken))
}

func (s *AuthServiceImpl) RequestEmailVerification(ctx context.Context, email string) (string, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			// Unknown address: report nothing to avoid user enumeration.
			return "", nil
		}
		return "", err
	}
	if u.EmailVerifiedAt != nil {
		return "", nil
	}

	raw := newOpaqueToken()
	expiresAt := time.Now().Add(s.tokens.VerifyTokenTTL)
	if err := s.repo.StoreOneTimeToken(ctx, u.ID, PurposeEmailVerify, hashToken(raw), expiresAt); err != nil {
		return "", err
	}

	// TODO: hand raw off to the mailer once email delivery lands.
	return raw, nil
}

func (s *AuthServiceImpl) VerifyEmail(ctx context.Context, rawToken string) error {
	_, err := s.repo.ConsumeEmailVerification(ctx, hashToken(rawToken))
	return err
}

func (s *AuthServiceImpl) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	raw := newOpaqueToken()
	expiresAt := time.Now().Add(s.tokens.ResetTokenTTL)
	if err := s.repo.StoreOneTimeToken(ctx, u.ID, PurposePasswordReset, hashToken(raw), expiresAt); err != nil {
		return "", err
	}

	return raw, nil
}

func (s *AuthServiceImpl) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if len(newPassword) < s.tokens.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters: %w", s.tokens.MinPasswordLength, api.ErrValidation)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	userID, err := s.repo.ConsumePasswordReset(ctx, hashToken(rawToken), string(hashed))
	if err != nil {
		return err
	}

	if err := s.audit.Log(ctx, nil, audit.ActionPasswordReset, audit.ResourceUser, userID, nil); err != nil {
		s.logger.WarnContext(ctx, "Failed to record password reset audit entry", slog.Any("error", err))
	}
	return nil
}

func (s *AuthServiceImpl) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	if len(newPassword) < s.tokens.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters: %w", s.tokens.MinPasswordLength, api.ErrValidation)
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)) != nil {
		return fmt.Errorf("old password is incorrect: %w", api.ErrValidation)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.repo.UpdatePasswordAndRevoke(ctx, userID, string(hashed)); err != nil {
		return err
	}

	if err := s.audit.Log(ctx, &userID, audit.ActionPasswordChange, audit.ResourceUser, userID, nil); err != nil {
		s.logger.WarnContext(ctx, "Failed to record password change audit entry", slog.Any("error", err))
	}
	return nil
}
