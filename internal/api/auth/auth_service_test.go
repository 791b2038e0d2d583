package auth

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/alxtim10/alx-auth/config"
	"github.com/alxtim10/alx-auth/internal/api"
)

// MockAuthRepo is a mock implementation of the AuthRepo interface
type MockAuthRepo struct {
	mock.Mock
}

func (m *MockAuthRepo) CreateUser(ctx context.Context, username, email, passwordHash string) (*api.User, error) {
	args := m.Called(ctx, username, email, passwordHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.User), args.Error(1)
}

func (m *MockAuthRepo) GetUserByUsername(ctx context.Context, username string) (*api.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.User), args.Error(1)
}

func (m *MockAuthRepo) GetUserByEmail(ctx context.Context, email string) (*api.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.User), args.Error(1)
}

func (m *MockAuthRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*api.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.User), args.Error(1)
}

func (m *MockAuthRepo) StoreSessionToken(ctx context.Context, userID uuid.UUID, tokenHash, device, ip string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, tokenHash, device, ip, expiresAt)
	return args.Error(0)
}

func (m *MockAuthRepo) RotateSessionToken(ctx context.Context, oldHash, newHash, device, ip string, expiresAt time.Time) (*api.User, error) {
	args := m.Called(ctx, oldHash, newHash, device, ip, expiresAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.User), args.Error(1)
}

func (m *MockAuthRepo) RevokeSessionToken(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

func (m *MockAuthRepo) StoreOneTimeToken(ctx context.Context, userID uuid.UUID, purpose, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, purpose, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *MockAuthRepo) ConsumeEmailVerification(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	args := m.Called(ctx, tokenHash)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockAuthRepo) ConsumePasswordReset(ctx context.Context, tokenHash, newPasswordHash string) (uuid.UUID, error) {
	args := m.Called(ctx, tokenHash, newPasswordHash)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockAuthRepo) UpdatePasswordAndRevoke(ctx context.Context, userID uuid.UUID, newPasswordHash string) error {
	args := m.Called(ctx, userID, newPasswordHash)
	return args.Error(0)
}

// MockRecorder is a mock implementation of the audit.Recorder interface
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Log(ctx context.Context, actorID *uuid.UUID, action, resource string, resourceID uuid.UUID, metadata map[string]any) error {
	args := m.Called(ctx, actorID, action, resource, resourceID, metadata)
	return args.Error(0)
}

func testTokensConfig() config.TokensConfig {
	return config.TokensConfig{
		RefreshTokenTTL:   14 * 24 * time.Hour,
		VerifyTokenTTL:    24 * time.Hour,
		ResetTokenTTL:     30 * time.Minute,
		MinPasswordLength: 6,
	}
}

func testIssuer() *TokenIssuer {
	return NewTokenIssuer(config.JWTConfig{
		SecretKey:      "test-access-secret",
		Issuer:         "test-issuer",
		Audience:       "test-audience",
		AccessTokenTTL: 15 * time.Minute,
	})
}

func activeUser(password string) *api.User {
	hashed, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return &api.User{
		ID:           uuid.New(),
		Username:     "testuser",
		Email:        "test@example.com",
		PasswordHash: string(hashed),
		Role:         api.RoleUser,
		Active:       true,
	}
}

func TestLogin(t *testing.T) {
	logger := slog.Default()

	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)
		ctx := context.Background()
		user := activeUser("password123")

		mockRepo.On("GetUserByUsername", ctx, "testuser").Return(user, nil).Once()
		mockRepo.On("StoreSessionToken", ctx, user.ID, mock.AnythingOfType("string"), "test-agent", "10.0.0.1", mock.AnythingOfType("time.Time")).Return(nil).Once()

		accessToken, refreshToken, err := service.Login(ctx, "testuser", "password123", "test-agent", "10.0.0.1")

		assert.NoError(t, err)
		assert.NotEmpty(t, accessToken)
		assert.NotEmpty(t, refreshToken)
		mockRepo.AssertExpectations(t)
	})

	t.Run("UserNotFound", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)
		ctx := context.Background()

		mockRepo.On("GetUserByUsername", ctx, "nobody").Return(nil, api.ErrNotFound).Once()

		accessToken, refreshToken, err := service.Login(ctx, "nobody", "password123", "", "")

		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		assert.Empty(t, accessToken)
		assert.Empty(t, refreshToken)
		mockRepo.AssertExpectations(t)
	})

	t.Run("InvalidPassword", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)
		ctx := context.Background()
		user := activeUser("correctpassword")

		mockRepo.On("GetUserByUsername", ctx, "testuser").Return(user, nil).Once()

		_, _, err := service.Login(ctx, "testuser", "wrongpassword", "", "")

		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		mockRepo.AssertExpectations(t)
	})

	t.Run("InactiveUser", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)
		ctx := context.Background()
		user := activeUser("password123")
		user.Active = false

		mockRepo.On("GetUserByUsername", ctx, "testuser").Return(user, nil).Once()

		_, _, err := service.Login(ctx, "testuser", "password123", "", "")

		// Indistinguishable from a bad password.
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		mockRepo.AssertExpectations(t)
	})

	t.Run("SoftDeletedUser", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)
		ctx := context.Background()
		user := activeUser("password123")
		deletedAt := time.Now()
		user.DeletedAt = &deletedAt

		mockRepo.On("GetUserByUsername", ctx, "testuser").Return(user, nil).Once()

		_, _, err := service.Login(ctx, "testuser", "password123", "", "")

		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		mockRepo.AssertExpectations(t)
	})
}

func TestRegister(t *testing.T) {
	logger := slog.Default()

	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)
		ctx := context.Background()
		user := activeUser("password123")

		mockRepo.On("CreateUser", ctx, "newuser", "new@example.com", mock.AnythingOfType("string")).Return(user, nil).Once()

		created, err := service.Register(ctx, "newuser", "new@example.com", "password123")

		assert.NoError(t, err)
		assert.NotNil(t, created)
		// The stored hash must verify against the plaintext.
		storedHash := mockRepo.Calls[0].Arguments.String(3)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(storedHash), []byte("password123")))
		mockRepo.AssertExpectations(t)
	})

	t.Run("ShortPassword", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)

		_, err := service.Register(context.Background(), "newuser", "new@example.com", "12345")

		assert.ErrorIs(t, err, api.ErrValidation)
		mockRepo.AssertNotCalled(t, "CreateUser")
	})

	t.Run("DuplicateUsername", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)
		ctx := context.Background()

		mockRepo.On("CreateUser", ctx, "taken", "new@example.com", mock.AnythingOfType("string")).Return(nil, api.ErrConflict).Once()

		_, err := service.Register(ctx, "taken", "new@example.com", "password123")

		assert.ErrorIs(t, err, api.ErrConflict)
		mockRepo.AssertExpectations(t)
	})
}

func TestRefresh(t *testing.T) {
	logger := slog.Default()

	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)
		ctx := context.Background()
		user := activeUser("password123")
		raw := newOpaqueToken()

		mockRepo.On("RotateSessionToken", ctx, hashToken(raw), mock.AnythingOfType("string"), "agent", "10.0.0.1", mock.AnythingOfType("time.Time")).Return(user, nil).Once()

		accessToken, newRefresh, err := service.Refresh(ctx, raw, "agent", "10.0.0.1")

		assert.NoError(t, err)
		assert.NotEmpty(t, accessToken)
		assert.NotEmpty(t, newRefresh)
		assert.NotEqual(t, raw, newRefresh)
		mockRepo.AssertExpectations(t)
	})

	t.Run("StaleToken", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)
		ctx := context.Background()
		raw := newOpaqueToken()

		mockRepo.On("RotateSessionToken", ctx, hashToken(raw), mock.AnythingOfType("string"), "", "", mock.AnythingOfType("time.Time")).Return(nil, api.ErrUnauthenticated).Once()

		_, _, err := service.Refresh(ctx, raw, "", "")

		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		mockRepo.AssertExpectations(t)
	})
}

func TestLogout(t *testing.T) {
	logger := slog.Default()

	t.Run("RevokesByHash", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)
		ctx := context.Background()
		raw := newOpaqueToken()

		mockRepo.On("RevokeSessionToken", ctx, hashToken(raw)).Return(nil).Once()

		assert.NoError(t, service.Logout(ctx, raw))
		mockRepo.AssertExpectations(t)
	})

	t.Run("EmptyTokenIsNoop", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)

		assert.NoError(t, service.Logout(context.Background(), ""))
		mockRepo.AssertNotCalled(t, "RevokeSessionToken")
	})
}

func TestRequestEmailVerification(t *testing.T) {
	logger := slog.Default()

	t.Run("IssuesToken", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)
		ctx := context.Background()
		user := activeUser("password123")

		mockRepo.On("GetUserByEmail", ctx, user.Email).Return(user, nil).Once()
		mockRepo.On("StoreOneTimeToken", ctx, user.ID, PurposeEmailVerify, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil).Once()

		raw, err := service.RequestEmailVerification(ctx, user.Email)

		assert.NoError(t, err)
		assert.NotEmpty(t, raw)
		mockRepo.AssertExpectations(t)
	})

	t.Run("UnknownEmailIsSilent", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)
		ctx := context.Background()

		mockRepo.On("GetUserByEmail", ctx, "nobody@example.com").Return(nil, api.ErrNotFound).Once()

		raw, err := service.RequestEmailVerification(ctx, "nobody@example.com")

		assert.NoError(t, err)
		assert.Empty(t, raw)
		mockRepo.AssertNotCalled(t, "StoreOneTimeToken")
	})

	t.Run("AlreadyVerifiedIsSilent", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)
		ctx := context.Background()
		user := activeUser("password123")
		verifiedAt := time.Now()
		user.EmailVerifiedAt = &verifiedAt

		mockRepo.On("GetUserByEmail", ctx, user.Email).Return(user, nil).Once()

		raw, err := service.RequestEmailVerification(ctx, user.Email)

		assert.NoError(t, err)
		assert.Empty(t, raw)
		mockRepo.AssertNotCalled(t, "StoreOneTimeToken")
	})
}

func TestResetPassword(t *testing.T) {
	logger := slog.Default()

	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		mockRecorder := new(MockRecorder)
		service := NewAuthService(mockRepo, testIssuer(), mockRecorder, testTokensConfig(), logger)
		ctx := context.Background()
		userID := uuid.New()
		raw := newOpaqueToken()

		mockRepo.On("ConsumePasswordReset", ctx, hashToken(raw), mock.AnythingOfType("string")).Return(userID, nil).Once()
		mockRecorder.On("Log", ctx, (*uuid.UUID)(nil), "PASSWORD_RESET", "USER", userID, mock.Anything).Return(nil).Once()

		err := service.ResetPassword(ctx, raw, "newpassword")

		assert.NoError(t, err)
		mockRepo.AssertExpectations(t)
		mockRecorder.AssertExpectations(t)
	})

	t.Run("ShortPassword", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)

		err := service.ResetPassword(context.Background(), newOpaqueToken(), "123")

		assert.ErrorIs(t, err, api.ErrValidation)
		mockRepo.AssertNotCalled(t, "ConsumePasswordReset")
	})

	t.Run("InvalidToken", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)
		ctx := context.Background()
		raw := newOpaqueToken()

		mockRepo.On("ConsumePasswordReset", ctx, hashToken(raw), mock.AnythingOfType("string")).Return(uuid.Nil, api.ErrValidation).Once()

		err := service.ResetPassword(ctx, raw, "newpassword")

		assert.ErrorIs(t, err, api.ErrValidation)
		mockRepo.AssertExpectations(t)
	})
}

func TestChangePassword(t *testing.T) {
	logger := slog.Default()

	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		mockRecorder := new(MockRecorder)
		service := NewAuthService(mockRepo, testIssuer(), mockRecorder, testTokensConfig(), logger)
		ctx := context.Background()
		user := activeUser("oldpassword")

		mockRepo.On("GetUserByID", ctx, user.ID).Return(user, nil).Once()
		mockRepo.On("UpdatePasswordAndRevoke", ctx, user.ID, mock.AnythingOfType("string")).Return(nil).Once()
		mockRecorder.On("Log", ctx, mock.AnythingOfType("*uuid.UUID"), "PASSWORD_CHANGE", "USER", user.ID, mock.Anything).Return(nil).Once()

		err := service.ChangePassword(ctx, user.ID, "oldpassword", "newpassword")

		assert.NoError(t, err)
		mockRepo.AssertExpectations(t)
		mockRecorder.AssertExpectations(t)
	})

	t.Run("WrongOldPassword", func(t *testing.T) {
		mockRepo := new(MockAuthRepo)
		service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), logger)
		ctx := context.Background()
		user := activeUser("oldpassword")

		mockRepo.On("GetUserByID", ctx, user.ID).Return(user, nil).Once()

		err := service.ChangePassword(ctx, user.ID, "notmyoldpassword", "newpassword")

		assert.ErrorIs(t, err, api.ErrValidation)
		mockRepo.AssertNotCalled(t, "UpdatePasswordAndRevoke")
	})
}

func TestRequestEmailVerification_StoreFailurePropagates(t *testing.T) {
	mockRepo := new(MockAuthRepo)
	service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), slog.Default())
	ctx := context.Background()

	// Only an unknown address is hidden; an outage must not be
	// reported as "sent".
	mockRepo.On("GetUserByEmail", ctx, "any@example.com").
		Return(nil, fmt.Errorf("db connection refused: %w", api.ErrInternal)).Once()

	raw, err := service.RequestEmailVerification(ctx, "any@example.com")

	assert.ErrorIs(t, err, api.ErrInternal)
	assert.Empty(t, raw)
	mockRepo.AssertNotCalled(t, "StoreOneTimeToken")
}

func TestRequestPasswordReset_StoreFailurePropagates(t *testing.T) {
	mockRepo := new(MockAuthRepo)
	service := NewAuthService(mockRepo, testIssuer(), new(MockRecorder), testTokensConfig(), slog.Default())
	ctx := context.Background()

	mockRepo.On("GetUserByEmail", ctx, "any@example.com").
		Return(nil, fmt.Errorf("db connection refused: %w", api.ErrInternal)).Once()

	raw, err := service.RequestPasswordReset(ctx, "any@example.com")

	assert.ErrorIs(t, err, api.ErrInternal)
	assert.Empty(t, raw)
	mockRepo.AssertNotCalled(t, "StoreOneTimeToken")
}
