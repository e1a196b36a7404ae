package audit

import (
	"context"

	"othertales/pkg/domain"
)

// Store is the append-only persistence contract for audit records.
type Store interface {
	// Append writes one immutable record. Implementations must persist the
	// Detail map losslessly.
	Append(ctx context.Context, rec Record) error

	// ListByActor returns records attributed to a user, most recent first.
	ListByActor(ctx context.Context, userID domain.UserID) ([]Record, error)
}
