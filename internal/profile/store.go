package profile

import (
	"context"

	"othertales/pkg/domain"
)

// Store persists the profile aggregate. Update performs a compare-and-swap
// on Version: the write only lands when the stored row still carries the
// version the aggregate was loaded with, and the stored version (and the
// aggregate's, on success) is incremented by one.
type Store interface {
	// Create inserts a new profile. Errors with CodeConflict when a profile
	// with the same ID already exists.
	Create(ctx context.Context, p *Profile) error

	// FindByID loads a profile. Errors with CodeNotFound when absent.
	FindByID(ctx context.Context, id domain.UserID) (*Profile, error)

	// Update persists a mutated aggregate. Errors with CodeConflict when the
	// stored version no longer matches p.Version.
	Update(ctx context.Context, p *Profile) error
}
