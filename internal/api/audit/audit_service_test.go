package audit

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPublisher is a mock implementation of the EventPublisher interface
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishEvent(ctx context.Context, key string, event interface{}) error {
	args := m.Called(ctx, key, event)
	return args.Error(0)
}

// MockAuditRepo is a mock implementation of the AuditRepo interface
type MockAuditRepo struct {
	mock.Mock
}

func (m *MockAuditRepo) Insert(ctx context.Context, entry Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func TestRecorder_PersistsThenPublishes(t *testing.T) {
	mockRepo := new(MockAuditRepo)
	mockPublisher := new(MockPublisher)
	recorder := NewRecorder(mockRepo, mockPublisher, slog.Default())
	ctx := context.Background()
	actorID := uuid.New()
	resourceID := uuid.New()

	mockRepo.On("Insert", ctx, mock.Anything).Return(nil).Once()
	mockPublisher.On("PublishEvent", ctx, resourceID.String(), mock.Anything).Return(nil).Once()

	err := recorder.Log(ctx, &actorID, ActionUserDelete, ResourceUser, resourceID, map[string]any{"deletedAt": "now"})

	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockPublisher.AssertExpectations(t)
}

func TestRecorder_PublishFailureIsSwallowed(t *testing.T) {
	mockRepo := new(MockAuditRepo)
	mockPublisher := new(MockPublisher)
	recorder := NewRecorder(mockRepo, mockPublisher, slog.Default())
	ctx := context.Background()
	resourceID := uuid.New()

	mockRepo.On("Insert", ctx, mock.Anything).Return(nil).Once()
	mockPublisher.On("PublishEvent", ctx, resourceID.String(), mock.Anything).
		Return(errors.New("broker unreachable")).Once()

	err := recorder.Log(ctx, nil, ActionPasswordChange, ResourceUser, resourceID, nil)

	// The audit row is the source of truth; a dead broker must not fail
	// the user-facing operation.
	assert.NoError(t, err)
}

func TestRecorder_InsertFailurePropagates(t *testing.T) {
	mockRepo := new(MockAuditRepo)
	recorder := NewRecorder(mockRepo, nil, slog.Default())
	ctx := context.Background()

	mockRepo.On("Insert", ctx, mock.Anything).Return(errors.New("connection lost")).Once()

	err := recorder.Log(ctx, nil, ActionPasswordReset, ResourceUser, uuid.New(), nil)

	assert.Error(t, err)
}

func TestRecorder_NilPublisherIsFine(t *testing.T) {
	mockRepo := new(MockAuditRepo)
	recorder := NewRecorder(mockRepo, nil, slog.Default())

	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Once()

	err := recorder.Log(context.Background(), nil, ActionUserUpdate, ResourceUser, uuid.New(), nil)

	assert.NoError(t, err)
}

func TestPostgresAuditRepo_Insert(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	repo := NewPostgresAuditRepo(mockPool, slog.Default())

	actorID := uuid.New()
	resourceID := uuid.New()

	mockPool.ExpectExec("INSERT INTO audit_logs").
		WithArgs(&actorID, ActionUserDelete, ResourceUser, resourceID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Insert(context.Background(), Entry{
		ActorID:    &actorID,
		Action:     ActionUserDelete,
		Resource:   ResourceUser,
		ResourceID: resourceID,
		Metadata:   map[string]any{"deletedAt": "2026-08-28T00:00:00Z"},
	})

	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
