package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	dErrors "othertales/pkg/domain-errors"
)

// Recorder is the single entry point for writing audit records. It assigns
// identity and timestamp so callers cannot forge either, then delegates to
// the store. Writes are fail-closed: a failed append fails the caller's
// operation.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record persists one audit entry. ID and RecordedAt on the input are
// ignored and assigned here.
func (r *Recorder) Record(ctx context.Context, rec Record) error {
	if rec.ActionType == "" {
		return dErrors.New(dErrors.CodeValidation, "audit record requires an action type")
	}
	rec.ID = uuid.New()
	rec.RecordedAt = time.Now().UTC()
	if err := r.store.Append(ctx, rec); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "append audit record")
	}
	return nil
}
