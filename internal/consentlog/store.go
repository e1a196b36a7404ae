package consentlog

import (
	"context"

	"othertales/pkg/domain"
)

// Store is the insert-only contract for consent history.
type Store interface {
	// Append writes one immutable history record. The timestamp is assigned
	// inside the call, never passed in.
	Append(ctx context.Context, userID domain.UserID, consentType domain.ConsentType, granted bool, ipAddress, userAgent string) error

	// ListByUser returns a user's history, most recent first. Reporting
	// tooling is the intended consumer; the write path never reads back.
	ListByUser(ctx context.Context, userID domain.UserID) ([]Record, error)
}
