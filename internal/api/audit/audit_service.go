package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

var _ Recorder = (*RecorderImpl)(nil)

// Recorder records one sensitive action. Implementations must persist
// the entry before returning.
type Recorder interface {
	Log(ctx context.Context, actorID *uuid.UUID, action, resource string, resourceID uuid.UUID, metadata map[string]any) error
}

// EventPublisher mirrors the audit trail onto a message bus. Publishing
// is best effort and never fails the recorded action.
type EventPublisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

type RecorderImpl struct {
	logger    *slog.Logger
	repo      AuditRepo
	publisher EventPublisher
}

// NewRecorder creates a Recorder. publisher may be nil when Kafka is
// disabled.
func NewRecorder(repo AuditRepo, publisher EventPublisher, logger *slog.Logger) *RecorderImpl {
	return &RecorderImpl{
		logger:    logger,
		repo:      repo,
		publisher: publisher,
	}
}

func (s *RecorderImpl) Log(ctx context.Context, actorID *uuid.UUID, action, resource string, resourceID uuid.UUID, metadata map[string]any) error {
	entry := Entry{
		ActorID:    actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Metadata:   metadata,
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		return err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishEvent(ctx, resourceID.String(), entry); err != nil {
			s.logger.WarnContext(ctx, "Audit event publish failed",
				slog.String("action", action), slog.Any("error", err))
		}
	}
	return nil
}
