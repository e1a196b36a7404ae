// Package domain holds shared value types used across modules: typed
// identifiers and the consent type enumeration. Construct values through the
// Parse helpers at trust boundaries; direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "othertales/pkg/domain-errors"
)

// UserID identifies an authenticated user. IDs are issued by the external
// auth provider and are immutable; this service never mints them.
type UserID uuid.UUID

// ParseUserID constructs a UserID from external input.
//
// Errors: CodeInvalidInput when the value is empty, malformed, or the nil UUID.
func ParseUserID(s string) (UserID, error) {
	if s == "" {
		return UserID{}, dErrors.New(dErrors.CodeInvalidInput, "user id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "user id must be a valid UUID")
	}
	if u == uuid.Nil {
		return UserID{}, dErrors.New(dErrors.CodeInvalidInput, "user id cannot be the nil UUID")
	}
	return UserID(u), nil
}

// IsNil reports whether the ID is the zero UUID.
func (id UserID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

// String returns the canonical UUID string.
func (id UserID) String() string {
	return uuid.UUID(id).String()
}
