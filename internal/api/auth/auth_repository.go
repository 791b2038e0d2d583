package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	database "github.com/alxtim10/alx-auth/app/db"
	"github.com/alxtim10/alx-auth/internal/api"
)

var _ AuthRepo = (*PostgresAuthRepo)(nil)

// AuthRepo is the persistence contract for users, session tokens and
// one-time tokens. Every mutating operation commits its validity
// predicate and its state change together, so concurrent requests racing
// on the same token resolve to exactly one winner.
type AuthRepo interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*api.User, error)
	// GetUserByUsername returns api.ErrNotFound for unknown or
	// soft-deleted usernames.
	GetUserByUsername(ctx context.Context, username string) (*api.User, error)
	GetUserByEmail(ctx context.Context, email string) (*api.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*api.User, error)

	StoreSessionToken(ctx context.Context, userID uuid.UUID, tokenHash, device, ip string, expiresAt time.Time) error
	// RotateSessionToken revokes the session matching oldHash iff it is
	// unrevoked, unexpired and owned by an active non-deleted user, and
	// stores the successor in the same transaction. Returns the owning
	// user, or api.ErrUnauthenticated when no session qualifies (also
	// when the race on a stale token was lost).
	RotateSessionToken(ctx context.Context, oldHash, newHash, device, ip string, expiresAt time.Time) (*api.User, error)
	// RevokeSessionToken is idempotent: revoking an unknown or already
	// revoked token is not an error.
	RevokeSessionToken(ctx context.Context, tokenHash string) error

	StoreOneTimeToken(ctx context.Context, userID uuid.UUID, purpose, tokenHash string, expiresAt time.Time) error
	// ConsumeEmailVerification marks the token used and stamps the
	// owner's email_verified_at in one transaction.
	ConsumeEmailVerification(ctx context.Context, tokenHash string) (uuid.UUID, error)
	// ConsumePasswordReset marks the token used, replaces the owner's
	// password hash and revokes every live session of the owner, all in
	// one transaction.
	ConsumePasswordReset(ctx context.Context, tokenHash, newPasswordHash string) (uuid.UUID, error)

	// UpdatePasswordAndRevoke replaces the password hash and revokes all
	// live sessions of the user in one transaction.
	UpdatePasswordAndRevoke(ctx context.Context, userID uuid.UUID, newPasswordHash string) error
}

type PostgresAuthRepo struct {
	logger *slog.Logger
	db     database.Conn
}

func NewPostgresAuthRepo(db database.Conn, logger *slog.Logger) *PostgresAuthRepo {
	return &PostgresAuthRepo{
		logger: logger,
		db:     db,
	}
}

const userColumns = `id, username, email, password_hash, role, active, created_at, updated_at, deleted_at, email_verified_at`

func scanUser(row pgx.Row) (*api.User, error) {
	var u api.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Active,
		&u.CreatedAt, &u.UpdatedAt, &u.DeletedAt, &u.EmailVerifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (r *PostgresAuthRepo) CreateUser(ctx context.Context, username, email, passwordHash string) (*api.User, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING `+userColumns,
		username, email, passwordHash)

	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("username or email already taken: %w", api.ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *PostgresAuthRepo) GetUserByUsername(ctx context.Context, username string) (*api.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 AND deleted_at IS NULL`,
		username)
	return scanUser(row)
}

func (r *PostgresAuthRepo) GetUserByEmail(ctx context.Context, email string) (*api.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`,
		email)
	return scanUser(row)
}

func (r *PostgresAuthRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*api.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`,
		userID)
	return scanUser(row)
}

func (r *PostgresAuthRepo) StoreSessionToken(ctx context.Context, userID uuid.UUID, tokenHash, device, ip string, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at, device, ip)
		 VALUES ($1, $2, $3, $4, $5)`,
		userID, tokenHash, expiresAt, device, ip)
	if err != nil {
		return fmt.Errorf("store session token: %w", err)
	}
	return nil
}

// rotateQuery revokes at most one currently-valid session and returns
// its owner. The token_hash uniqueness constraint plus the revoked_at
// IS NULL predicate guarantee that of two concurrent rotations of the
// same token exactly one sees a row.
const rotateQuery = `
	UPDATE refresh_tokens rt
	   SET revoked_at = now()
	  FROM users u
	 WHERE rt.token_hash = $1
	   AND rt.revoked_at IS NULL
	   AND rt.expires_at > now()
	   AND u.id = rt.user_id
	   AND u.active
	   AND u.deleted_at IS NULL
	RETURNING u.id, u.username, u.email, u.password_hash, u.role, u.active,
	          u.created_at, u.updated_at, u.deleted_at, u.email_verified_at`

func (r *PostgresAuthRepo) RotateSessionToken(ctx context.Context, oldHash, newHash, device, ip string, expiresAt time.Time) (*api.User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("rotate session: begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	u, err := scanUser(tx.QueryRow(ctx, rotateQuery, oldHash))
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, fmt.Errorf("no valid session for token: %w", api.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("rotate session: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at, device, ip)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, newHash, expiresAt, device, ip)
	if err != nil {
		return nil, fmt.Errorf("rotate session: store successor failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("rotate session: commit failed: %w", err)
	}
	return u, nil
}

func (r *PostgresAuthRepo) RevokeSessionToken(ctx context.Context, tokenHash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now()
		 WHERE token_hash = $1 AND revoked_at IS NULL`,
		tokenHash)
	if err != nil {
		return fmt.Errorf("revoke session token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.DebugContext(ctx, "Logout for unknown or already revoked session token")
	}
	return nil
}

// execer is satisfied by both database.Conn and pgx.Tx, so the bulk
// revoke can run inside the caller's transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// revokeUserSessions revokes every live session of the user. Shared by
// the password reset and password change cascades.
func revokeUserSessions(ctx context.Context, q execer, userID uuid.UUID) error {
	_, err := q.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now()
		 WHERE user_id = $1 AND revoked_at IS NULL`,
		userID)
	if err != nil {
		return fmt.Errorf("revoke all sessions: %w", err)
	}
	return nil
}

func (r *PostgresAuthRepo) StoreOneTimeToken(ctx context.Context, userID uuid.UUID, purpose, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO one_time_tokens (user_id, purpose, token_hash, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		userID, purpose, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("store one-time token: %w", err)
	}
	return nil
}

// consumeQuery sets used_at iff the token is unused and unexpired.
// used_at, once set, is permanent.
const consumeQuery = `
	UPDATE one_time_tokens SET used_at = now()
	 WHERE token_hash = $1 AND purpose = $2
	   AND used_at IS NULL AND expires_at > now()
	RETURNING user_id`

func (r *PostgresAuthRepo) ConsumeEmailVerification(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume verification: begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID uuid.UUID
	err = tx.QueryRow(ctx, consumeQuery, tokenHash, PurposeEmailVerify).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("verification token invalid or expired: %w", api.ErrValidation)
		}
		return uuid.Nil, fmt.Errorf("consume verification: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET email_verified_at = now(), updated_at = now() WHERE id = $1`,
		userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume verification: stamp user failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("consume verification: commit failed: %w", err)
	}
	return userID, nil
}

func (r *PostgresAuthRepo) ConsumePasswordReset(ctx context.Context, tokenHash, newPasswordHash string) (uuid.UUID, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume reset: begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID uuid.UUID
	err = tx.QueryRow(ctx, consumeQuery, tokenHash, PurposePasswordReset).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("reset token invalid or expired: %w", api.ErrValidation)
		}
		return uuid.Nil, fmt.Errorf("consume reset: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`,
		newPasswordHash, userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume reset: update password failed: %w", err)
	}

	if err := revokeUserSessions(ctx, tx, userID); err != nil {
		return uuid.Nil, fmt.Errorf("consume reset: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("consume reset: commit failed: %w", err)
	}
	return userID, nil
}

func (r *PostgresAuthRepo) UpdatePasswordAndRevoke(ctx context.Context, userID uuid.UUID, newPasswordHash string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("update password: begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = now()
		 WHERE id = $2 AND deleted_at IS NULL`,
		newPasswordHash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %w", api.ErrNotFound)
	}

	if err := revokeUserSessions(ctx, tx, userID); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return tx.Commit(ctx)
}
