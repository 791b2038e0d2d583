package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	database "github.com/alxtim10/alx-auth/app/db"
	"github.com/alxtim10/alx-auth/internal/api"
)

var _ UserRepo = (*PostgresUserRepo)(nil)

// UserRepo defines the contract for administrative user persistence.
type UserRepo interface {
	// GetUserByID retrieves an account by ID. Soft-deleted accounts
	// return api.ErrNotFound.
	GetUserByID(ctx context.Context, userID uuid.UUID) (*api.User, error)

	// List returns one page of accounts matching params plus the total
	// match count. params must already be clamped and whitelisted.
	List(ctx context.Context, params ListUsersParams) ([]api.User, int64, error)

	// Update applies a partial update. Returns api.ErrNotFound when the
	// account does not exist or is soft-deleted, api.ErrConflict on a
	// duplicate email.
	Update(ctx context.Context, userID uuid.UUID, params UpdateUserParams) (*api.User, error)

	// SoftDelete stamps deleted_at, deactivates the account and revokes
	// every live session in one transaction. Returns the deletion
	// timestamp, or api.ErrNotFound when already deleted or unknown.
	SoftDelete(ctx context.Context, userID uuid.UUID) (time.Time, error)
}

// sortColumns is the whitelist for the sort query parameter. Anything
// else falls back to created_at.
var sortColumns = map[string]string{
	"id":         "id",
	"username":   "username",
	"email":      "email",
	"role":       "role",
	"active":     "active",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

type PostgresUserRepo struct {
	logger *slog.Logger
	db     database.Conn
}

func NewPostgresUserRepo(conn database.Conn, logger *slog.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{
		logger: logger,
		db:     conn,
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
		return nil, fmt.Errorf("database error scanning user: %w", err)
	}
	return &u, nil
}

func (r *PostgresUserRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*api.User, error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "GetUserByID", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	u, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		span.SetStatus(codes.Error, "user lookup failed")
		return nil, err
	}
	return u, nil
}

func (r *PostgresUserRepo) List(ctx context.Context, params ListUsersParams) ([]api.User, int64, error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "List", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "users"),
		attribute.Int("page", params.Page),
		attribute.Int("size", params.Size),
	))
	defer span.End()

	where := []string{"deleted_at IS NULL"}
	var args []interface{}
	argID := 1

	if params.Query != "" {
		where = append(where, fmt.Sprintf("(username ILIKE $%d OR email ILIKE $%d)", argID, argID))
		args = append(args, "%"+params.Query+"%")
		argID++
	}
	if params.Role != "" {
		where = append(where, fmt.Sprintf("role = $%d", argID))
		args = append(args, params.Role)
		argID++
	}
	if params.Active != nil {
		where = append(where, fmt.Sprintf("active = $%d", argID))
		args = append(args, *params.Active)
		argID++
	}
	if params.CreatedFrom != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", argID))
		args = append(args, *params.CreatedFrom)
		argID++
	}
	if params.CreatedTo != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", argID))
		args = append(args, *params.CreatedTo)
		argID++
	}
	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := "SELECT count(*) FROM users WHERE " + whereClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		span.SetStatus(codes.Error, "count failed")
		return nil, 0, fmt.Errorf("database error counting users: %w", err)
	}

	sortCol, ok := sortColumns[params.Sort]
	if !ok {
		sortCol = "created_at"
	}
	dir := "ASC"
	if strings.EqualFold(params.Dir, "desc") {
		dir = "DESC"
	}

	query := fmt.Sprintf("SELECT %s FROM users WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		userColumns, whereClause, sortCol, dir, argID, argID+1)
	args = append(args, params.Size, (params.Page-1)*params.Size)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		span.SetStatus(codes.Error, "list query failed")
		return nil, 0, fmt.Errorf("database error listing users: %w", err)
	}
	defer rows.Close()

	var users []api.User
	for rows.Next() {
		var u api.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Active,
			&u.CreatedAt, &u.UpdatedAt, &u.DeletedAt, &u.EmailVerifiedAt); err != nil {
			return nil, 0, fmt.Errorf("database error scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("database error iterating users: %w", err)
	}

	return users, total, nil
}

func (r *PostgresUserRepo) Update(ctx context.Context, userID uuid.UUID, params UpdateUserParams) (*api.User, error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "Update", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Update"), slog.String("userID", userID.String()))

	var setClauses []string
	var args []interface{}
	argID := 1

	if params.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = $%d", argID))
		args = append(args, *params.Email)
		argID++
		span.SetAttributes(attribute.Bool("update.email", true))
	}
	if params.PasswordHash != nil {
		setClauses = append(setClauses, fmt.Sprintf("password_hash = $%d", argID))
		args = append(args, *params.PasswordHash)
		argID++
		span.SetAttributes(attribute.Bool("update.password", true))
	}
	if params.Role != nil {
		setClauses = append(setClauses, fmt.Sprintf("role = $%d", argID))
		args = append(args, *params.Role)
		argID++
		span.SetAttributes(attribute.Bool("update.role", true))
	}
	if params.Active != nil {
		setClauses = append(setClauses, fmt.Sprintf("active = $%d", argID))
		args = append(args, *params.Active)
		argID++
		span.SetAttributes(attribute.Bool("update.active", true))
	}

	if len(setClauses) == 0 {
		l.WarnContext(ctx, "Update called with no fields to update")
		return r.GetUserByID(ctx, userID)
	}

	setClauses = append(setClauses, "updated_at = now()")

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d AND deleted_at IS NULL RETURNING %s",
		strings.Join(setClauses, ", "), argID, userColumns)
	args = append(args, userID)

	u, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("email already in use: %w", api.ErrConflict)
		}
		span.SetStatus(codes.Error, "update failed")
		return nil, err
	}

	l.InfoContext(ctx, "User updated")
	return u, nil
}

func (r *PostgresUserRepo) SoftDelete(ctx context.Context, userID uuid.UUID) (time.Time, error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "SoftDelete", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("database error starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Conditional on deleted_at so a concurrent delete loses cleanly.
	var deletedAt time.Time
	err = tx.QueryRow(ctx, `
        UPDATE users
           SET deleted_at = now(), active = FALSE, updated_at = now()
         WHERE id = $1 AND deleted_at IS NULL
     RETURNING deleted_at`, userID).Scan(&deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, api.ErrNotFound
		}
		span.SetStatus(codes.Error, "soft delete failed")
		return time.Time{}, fmt.Errorf("database error soft-deleting user: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL`,
		userID)
	if err != nil {
		return time.Time{}, fmt.Errorf("database error revoking sessions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, fmt.Errorf("database error committing soft delete: %w", err)
	}

	r.logger.InfoContext(ctx, "User soft-deleted", slog.String("userID", userID.String()))
	return deletedAt, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
