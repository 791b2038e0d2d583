package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action tags recorded for sensitive operations.
const (
	ActionUserUpdate     = "USER_UPDATE"
	ActionUserDelete     = "USER_DELETE"
	ActionPasswordReset  = "PASSWORD_RESET"
	ActionPasswordChange = "PASSWORD_CHANGE"
)

const ResourceUser = "USER"

// Entry is one append-only audit record. ActorID is nil for
// system-initiated actions.
type Entry struct {
	ID         uuid.UUID      `json:"id"`
	ActorID    *uuid.UUID     `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID uuid.UUID      `json:"resource_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
