package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"othertales/pkg/domain"
)

func TestDetailRoundTripHeterogeneous(t *testing.T) {
	detail := Detail{
		"consent_type":   String("PRIVACY_POLICY"),
		"previous_value": Bool(false),
		"new_value":      Bool(true),
		"attempt":        Number(2),
	}

	raw, err := json.Marshal(detail)
	require.NoError(t, err)

	var decoded Detail
	require.NoError(t, json.Unmarshal(raw, &decoded))

	ct, ok := decoded["consent_type"].AsString()
	require.True(t, ok)
	assert.Equal(t, "PRIVACY_POLICY", ct)

	prev, ok := decoded["previous_value"].AsBool()
	require.True(t, ok)
	assert.False(t, prev)

	next, ok := decoded["new_value"].AsBool()
	require.True(t, ok)
	assert.True(t, next)

	attempt, ok := decoded["attempt"].AsNumber()
	require.True(t, ok)
	assert.Equal(t, float64(2), attempt)
}

func TestDetailAccessorsRejectWrongKind(t *testing.T) {
	v := Bool(true)

	_, ok := v.AsString()
	assert.False(t, ok)
	_, ok = v.AsNumber()
	assert.False(t, ok)
	b, ok := v.AsBool()
	assert.True(t, ok)
	assert.True(t, b)
}

func TestDetailUnmarshalRejectsNonScalar(t *testing.T) {
	var detail Detail
	err := json.Unmarshal([]byte(`{"nested":{"a":1}}`), &detail)
	require.Error(t, err)

	err = json.Unmarshal([]byte(`{"list":[1,2]}`), &detail)
	require.Error(t, err)
}

func TestRecorderAssignsIdentityAndTimestamp(t *testing.T) {
	store := NewMemoryStore()
	recorder := NewRecorder(store)

	userID := domain.UserID(uuid.New())
	forged := uuid.New()
	err := recorder.Record(context.Background(), Record{
		ID:          forged,
		ActorUserID: &userID,
		ActionType:  ActionConsentUpdated,
		RecordedAt:  time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	records, err := store.ListByActor(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotEqual(t, forged, records[0].ID)
	assert.WithinDuration(t, time.Now().UTC(), records[0].RecordedAt, time.Minute)
}

func TestRecorderRequiresAction(t *testing.T) {
	recorder := NewRecorder(NewMemoryStore())
	err := recorder.Record(context.Background(), Record{})
	require.Error(t, err)
}

func TestMemoryStoreListByActorFiltersAndOrders(t *testing.T) {
	store := NewMemoryStore()
	recorder := NewRecorder(store)
	ctx := context.Background()

	actorA := domain.UserID(uuid.New())
	actorB := domain.UserID(uuid.New())

	require.NoError(t, recorder.Record(ctx, Record{ActorUserID: &actorA, ActionType: ActionProfileCreated}))
	require.NoError(t, recorder.Record(ctx, Record{ActorUserID: &actorB, ActionType: ActionProfileCreated}))
	require.NoError(t, recorder.Record(ctx, Record{ActorUserID: &actorA, ActionType: ActionConsentUpdated}))

	records, err := store.ListByActor(ctx, actorA)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Most recent first.
	assert.Equal(t, ActionConsentUpdated, records[0].ActionType)
	assert.Equal(t, ActionProfileCreated, records[1].ActionType)
}

func TestMemoryStoreSnapshotRestoreUser(t *testing.T) {
	store := NewMemoryStore()
	recorder := NewRecorder(store)
	ctx := context.Background()
	actor := domain.UserID(uuid.New())

	require.NoError(t, recorder.Record(ctx, Record{ActorUserID: &actor, ActionType: ActionProfileCreated}))
	snap := store.SnapshotUser(actor)

	require.NoError(t, recorder.Record(ctx, Record{ActorUserID: &actor, ActionType: ActionConsentUpdated}))
	store.RestoreUser(actor, snap)

	records, err := store.ListByActor(ctx, actor)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMemoryStoreRestoreUserLeavesOtherActorsAlone(t *testing.T) {
	store := NewMemoryStore()
	recorder := NewRecorder(store)
	ctx := context.Background()
	actorA := domain.UserID(uuid.New())
	actorB := domain.UserID(uuid.New())

	snapA := store.SnapshotUser(actorA)
	require.NoError(t, recorder.Record(ctx, Record{ActorUserID: &actorA, ActionType: ActionConsentUpdated}))
	require.NoError(t, recorder.Record(ctx, Record{ActorUserID: &actorB, ActionType: ActionConsentUpdated}))

	store.RestoreUser(actorA, snapA)

	recordsA, err := store.ListByActor(ctx, actorA)
	require.NoError(t, err)
	assert.Empty(t, recordsA)

	recordsB, err := store.ListByActor(ctx, actorB)
	require.NoError(t, err)
	assert.Len(t, recordsB, 1)
}
