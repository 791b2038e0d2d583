package auth

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alxtim10/alx-auth/internal/api"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PostgresAuthRepo) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return mockPool, NewPostgresAuthRepo(mockPool, slog.Default())
}

func userRows(userID uuid.UUID) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows([]string{
		"id", "username", "email", "password_hash", "role", "active",
		"created_at", "updated_at", "deleted_at", "email_verified_at",
	}).AddRow(userID, "testuser", "test@example.com", "hash", api.RoleUser, true, now, now, nil, nil)
}

func TestCreateUser_DuplicateMapsToConflict(t *testing.T) {
	mockPool, repo := newMockRepo(t)

	mockPool.ExpectQuery("INSERT INTO users").
		WithArgs("testuser", "test@example.com", "hash").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	_, err := repo.CreateUser(context.Background(), "testuser", "test@example.com", "hash")

	assert.ErrorIs(t, err, api.ErrConflict)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGetUserByUsername_NotFound(t *testing.T) {
	mockPool, repo := newMockRepo(t)

	mockPool.ExpectQuery("SELECT (.+) FROM users WHERE username").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := repo.GetUserByUsername(context.Background(), "ghost")

	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRotateSessionToken_Success(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	userID := uuid.New()
	expiresAt := time.Now().Add(14 * 24 * time.Hour)

	mockPool.ExpectBegin()
	mockPool.ExpectQuery("UPDATE refresh_tokens rt").
		WithArgs("old-hash").
		WillReturnRows(userRows(userID))
	mockPool.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(userID, "new-hash", expiresAt, "agent", "10.0.0.1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectCommit()

	u, err := repo.RotateSessionToken(context.Background(), "old-hash", "new-hash", "agent", "10.0.0.1", expiresAt)

	require.NoError(t, err)
	assert.Equal(t, userID, u.ID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRotateSessionToken_StaleTokenLosesRace(t *testing.T) {
	mockPool, repo := newMockRepo(t)

	// The conditional UPDATE matches nothing: token already rotated,
	// expired, or its owner deactivated. No successor may be written.
	mockPool.ExpectBegin()
	mockPool.ExpectQuery("UPDATE refresh_tokens rt").
		WithArgs("stale-hash").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mockPool.ExpectRollback()

	_, err := repo.RotateSessionToken(context.Background(), "stale-hash", "new-hash", "", "", time.Now())

	assert.ErrorIs(t, err, api.ErrUnauthenticated)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRevokeSessionToken_Idempotent(t *testing.T) {
	mockPool, repo := newMockRepo(t)

	mockPool.ExpectExec("UPDATE refresh_tokens SET revoked_at").
		WithArgs("unknown-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.RevokeSessionToken(context.Background(), "unknown-hash")

	assert.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestConsumeEmailVerification_Success(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	userID := uuid.New()

	mockPool.ExpectBegin()
	mockPool.ExpectQuery("UPDATE one_time_tokens SET used_at").
		WithArgs("token-hash", PurposeEmailVerify).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(userID))
	mockPool.ExpectExec("UPDATE users SET email_verified_at").
		WithArgs(userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockPool.ExpectCommit()

	got, err := repo.ConsumeEmailVerification(context.Background(), "token-hash")

	require.NoError(t, err)
	assert.Equal(t, userID, got)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestConsumeEmailVerification_UsedToken(t *testing.T) {
	mockPool, repo := newMockRepo(t)

	mockPool.ExpectBegin()
	mockPool.ExpectQuery("UPDATE one_time_tokens SET used_at").
		WithArgs("used-hash", PurposeEmailVerify).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}))
	mockPool.ExpectRollback()

	_, err := repo.ConsumeEmailVerification(context.Background(), "used-hash")

	assert.ErrorIs(t, err, api.ErrValidation)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestConsumePasswordReset_RevokesSessions(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	userID := uuid.New()

	mockPool.ExpectBegin()
	mockPool.ExpectQuery("UPDATE one_time_tokens SET used_at").
		WithArgs("token-hash", PurposePasswordReset).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(userID))
	mockPool.ExpectExec("UPDATE users SET password_hash").
		WithArgs("new-hash", userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockPool.ExpectExec("UPDATE refresh_tokens SET revoked_at").
		WithArgs(userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mockPool.ExpectCommit()

	got, err := repo.ConsumePasswordReset(context.Background(), "token-hash", "new-hash")

	require.NoError(t, err)
	assert.Equal(t, userID, got)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestUpdatePasswordAndRevoke_UserGone(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	userID := uuid.New()

	mockPool.ExpectBegin()
	mockPool.ExpectExec("UPDATE users SET password_hash").
		WithArgs("new-hash", userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mockPool.ExpectRollback()

	err := repo.UpdatePasswordAndRevoke(context.Background(), userID, "new-hash")

	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
