// Package consentlog is the append-only history of consent change events,
// kept for compliance reporting. Records are immutable: the store contract
// exposes no update or delete.
package consentlog

import (
	"time"

	"github.com/google/uuid"

	"othertales/pkg/domain"
)

// Record is one consent-change event. RecordedAt is assigned by the store at
// write time so caller clock skew cannot corrupt the trail.
type Record struct {
	ID          uuid.UUID
	UserID      domain.UserID
	ConsentType domain.ConsentType
	Granted     bool
	IPAddress   string
	UserAgent   string
	RecordedAt  time.Time
}
