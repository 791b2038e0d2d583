package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	database "github.com/alxtim10/alx-auth/app/db"
)

var _ AuditRepo = (*PostgresAuditRepo)(nil)

// AuditRepo appends audit entries. Entries are never updated or deleted
// by this service.
type AuditRepo interface {
	Insert(ctx context.Context, entry Entry) error
}

type PostgresAuditRepo struct {
	logger *slog.Logger
	db     database.Conn
}

func NewPostgresAuditRepo(db database.Conn, logger *slog.Logger) *PostgresAuditRepo {
	return &PostgresAuditRepo{
		logger: logger,
		db:     db,
	}
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, entry Entry) error {
	var meta []byte
	if entry.Metadata != nil {
		var err error
		meta, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("audit insert: marshal metadata: %w", err)
		}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_logs (actor_user_id, action, resource, resource_id, metadata)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ActorID, entry.Action, entry.Resource, entry.ResourceID, meta)
	if err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}
	return nil
}
