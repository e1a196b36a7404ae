package service

import (
	"context"
	"sync"
	"time"

	"othertales/internal/audit"
	"othertales/internal/consentlog"
	"othertales/internal/profile"
	"othertales/pkg/domain"
	dErrors "othertales/pkg/domain-errors"
)

// Stores bundles everything a unit of work may touch. The same instance is
// shared across calls; transactional implementations route mutations through
// the context instead of swapping stores.
type Stores struct {
	Profiles profile.Store
	History  consentlog.Store
	Audit    *audit.Recorder
}

// TxRunner provides the atomic boundary for consent mutations. All three
// writes of a consent update (profile, history, audit) happen inside one
// RunInTx call and commit or roll back together.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

// snapshotter is implemented by the memory stores so memoryTx can roll back
// appends, which a compare-and-swap alone cannot undo. Snapshots cover one
// user's entries only: rolling back a failed unit must never touch state
// committed for other users in the meantime.
type snapshotter interface {
	SnapshotUser(userID domain.UserID) any
	RestoreUser(userID domain.UserID, snapshot any)
}

// Operations are distributed across N shards keyed by user ID so unrelated
// users do not serialize behind one lock.
const numTxShards = 128

const defaultTxTimeout = 5 * time.Second

// memoryTx is the in-memory TxRunner. It takes a per-user shard lock,
// snapshots the user's entries in every store, and restores them when fn
// fails. Every transaction must be tagged with WithTxUser; the shard lock
// only serializes same-user work, so rollback has to stay inside the tagged
// user's slice of each store.
type memoryTx struct {
	shards  [numTxShards]sync.Mutex
	stores  Stores
	snaps   []snapshotter
	timeout time.Duration
}

// NewMemoryTx builds a TxRunner over memory stores. The stores inside the
// Stores bundle must be the memory implementations.
func NewMemoryTx(stores Stores, snaps ...snapshotter) TxRunner {
	return &memoryTx{stores: stores, snaps: snaps}
}

func (t *memoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	userID, ok := txUserFrom(ctx)
	if !ok {
		return dErrors.New(dErrors.CodeInternal, "transaction requires a user scope")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := int(hashUserKey(userID.String()) % numTxShards)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	taken := make([]any, len(t.snaps))
	for i, s := range t.snaps {
		taken[i] = s.SnapshotUser(userID)
	}
	if err := fn(ctx, t.stores); err != nil {
		for i, s := range t.snaps {
			s.RestoreUser(userID, taken[i])
		}
		return err
	}
	return nil
}

// hashUserKey is FNV-1a.
func hashUserKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}

type txUserKey struct{}

var txUserKeyCtx = txUserKey{}

// WithTxUser tags the context with the user a transaction is about, used for
// shard selection and rollback scoping by the memory runner.
func WithTxUser(ctx context.Context, userID domain.UserID) context.Context {
	return context.WithValue(ctx, txUserKeyCtx, userID)
}

func txUserFrom(ctx context.Context) (domain.UserID, bool) {
	userID, ok := ctx.Value(txUserKeyCtx).(domain.UserID)
	return userID, ok
}
