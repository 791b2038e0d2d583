package user

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/alxtim10/alx-auth/internal/api"
	"github.com/alxtim10/alx-auth/internal/api/audit"
)

var _ UserService = (*UserServiceImpl)(nil)

// UserService covers the administrative user lifecycle: listing,
// inspection, patching and soft deletion.
type UserService interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*api.User, error)
	ListUsers(ctx context.Context, params ListUsersParams) (*UserPage, error)

	// UpdateUser applies a partial update. Role and Active changes are
	// silently dropped for non-admin callers.
	UpdateUser(ctx context.Context, actorID, userID uuid.UUID, req UpdateUserRequest, isAdmin bool) (*api.User, error)

	// SoftDeleteUser retires an account and revokes its sessions.
	SoftDeleteUser(ctx context.Context, actorID, userID uuid.UUID) error
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type UserServiceImpl struct {
	logger *slog.Logger
	repo   UserRepo
	audit  audit.Recorder
}

func NewUserService(repo UserRepo, recorder audit.Recorder, logger *slog.Logger) *UserServiceImpl {
	return &UserServiceImpl{
		logger: logger,
		repo:   repo,
		audit:  recorder,
	}
}

func (s *UserServiceImpl) GetUser(ctx context.Context, userID uuid.UUID) (*api.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

func (s *UserServiceImpl) ListUsers(ctx context.Context, params ListUsersParams) (*UserPage, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Size < 1 {
		params.Size = defaultPageSize
	}
	if params.Size > maxPageSize {
		params.Size = maxPageSize
	}
	if _, ok := sortColumns[params.Sort]; !ok {
		params.Sort = "created_at"
	}
	if params.Dir != "asc" && params.Dir != "desc" {
		params.Dir = "asc"
	}

	users, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, err
	}

	data := make([]UserResponse, 0, len(users))
	for i := range users {
		data = append(data, NewUserResponse(&users[i]))
	}

	filters := make(map[string]string)
	if params.Query != "" {
		filters["q"] = params.Query
	}
	if params.Role != "" {
		filters["role"] = params.Role
	}
	if params.Active != nil {
		filters["active"] = fmt.Sprintf("%t", *params.Active)
	}
	if params.CreatedFrom != nil {
		filters["createdFrom"] = params.CreatedFrom.Format(time.RFC3339)
	}
	if params.CreatedTo != nil {
		filters["createdTo"] = params.CreatedTo.Format(time.RFC3339)
	}

	return &UserPage{
		Page:       params.Page,
		Size:       params.Size,
		Total:      total,
		TotalPages: int64(math.Ceil(float64(total) / float64(params.Size))),
		Sort:       params.Sort,
		Dir:        params.Dir,
		Filters:    filters,
		Data:       data,
	}, nil
}

func (s *UserServiceImpl) UpdateUser(ctx context.Context, actorID, userID uuid.UUID, req UpdateUserRequest, isAdmin bool) (*api.User, error) {
	params := UpdateUserParams{Email: req.Email}

	if req.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		h := string(hashed)
		params.PasswordHash = &h
	}

	if isAdmin {
		params.Role = req.Role
		params.Active = req.Active
	}

	u, err := s.repo.Update(ctx, userID, params)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"emailChanged":    req.Email != nil,
		"passwordChanged": req.Password != nil,
		"roleChanged":     isAdmin && req.Role != nil,
		"activeChanged":   isAdmin && req.Active != nil,
	}
	if err := s.audit.Log(ctx, &actorID, audit.ActionUserUpdate, audit.ResourceUser, userID, metadata); err != nil {
		s.logger.WarnContext(ctx, "Failed to record user update audit entry", slog.Any("error", err))
	}

	return u, nil
}

func (s *UserServiceImpl) SoftDeleteUser(ctx context.Context, actorID, userID uuid.UUID) error {
	deletedAt, err := s.repo.SoftDelete(ctx, userID)
	if err != nil {
		return err
	}

	metadata := map[string]any{"deletedAt": deletedAt.Format(time.RFC3339)}
	if err := s.audit.Log(ctx, &actorID, audit.ActionUserDelete, audit.ResourceUser, userID, metadata); err != nil {
		s.logger.WarnContext(ctx, "Failed to record user delete audit entry", slog.Any("error", err))
	}

	s.logger.InfoContext(ctx, "User account retired",
		slog.String("userID", userID.String()), slog.String("actorID", actorID.String()))
	return nil
}
