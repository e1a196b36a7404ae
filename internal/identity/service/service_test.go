package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel"

	"othertales/internal/audit"
	"othertales/internal/consentlog"
	"othertales/internal/platform/metrics"
	"othertales/internal/profile"
	"othertales/pkg/domain"
	dErrors "othertales/pkg/domain-errors"
)

type fixture struct {
	svc      *Service
	txr      TxRunner
	profiles *profile.MemoryStore
	history  *consentlog.MemoryStore
	auditLog *audit.MemoryStore
}

// newFixture wires a service over memory stores. mutate may swap stores in
// the bundle to inject failures; the snapshots still come from the real
// memory stores so rollback is observable.
func newFixture(mutate func(*Stores)) *fixture {
	profiles := profile.NewMemoryStore()
	history := consentlog.NewMemoryStore()
	auditStore := audit.NewMemoryStore()

	stores := Stores{
		Profiles: profiles,
		History:  history,
		Audit:    audit.NewRecorder(auditStore),
	}
	if mutate != nil {
		mutate(&stores)
	}

	txr := NewMemoryTx(stores, profiles, history, auditStore)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	svc := New(stores.Profiles, stores.History, txr, logger, m, otel.Tracer("test"))

	return &fixture{svc: svc, txr: txr, profiles: profiles, history: history, auditLog: auditStore}
}

func (f *fixture) seedProfile(t *testing.T, userID domain.UserID) *profile.Profile {
	t.Helper()
	p := profile.New(userID, "u1@example.com", "User One", time.Now().UTC())
	require.NoError(t, f.profiles.Create(context.Background(), p))
	return p
}

type IdentityServiceSuite struct {
	suite.Suite
	ctx    context.Context
	userID domain.UserID
}

func (s *IdentityServiceSuite) SetupTest() {
	s.ctx = context.Background()
	userID, err := domain.ParseUserID("7b1e9d2c-4f6a-4c1e-9b3d-2a8f5e7c6d01")
	s.Require().NoError(err)
	s.userID = userID
}

func TestIdentityServiceSuite(t *testing.T) {
	suite.Run(t, new(IdentityServiceSuite))
}

func (s *IdentityServiceSuite) TestUpdateConsentEndToEnd() {
	f := newFixture(nil)
	f.seedProfile(s.T(), s.userID)

	result, err := f.svc.UpdateConsent(s.ctx, s.userID, domain.ConsentPrivacyPolicy, true, "10.0.0.1", "curl/8.0")
	s.Require().NoError(err)

	s.Equal(domain.ConsentPrivacyPolicy, result.ConsentType)
	s.True(result.Granted)

	p, err := f.profiles.FindByID(s.ctx, s.userID)
	s.Require().NoError(err)
	s.True(p.ConsentValue(domain.ConsentPrivacyPolicy))
	s.NotNil(p.ConsentChangedAt(domain.ConsentPrivacyPolicy))
	s.Equal(int64(1), p.Version)

	history, err := f.history.ListByUser(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(domain.ConsentPrivacyPolicy, history[0].ConsentType)
	s.True(history[0].Granted)
	s.Equal("10.0.0.1", history[0].IPAddress)
	s.Equal("curl/8.0", history[0].UserAgent)
	s.False(history[0].RecordedAt.IsZero())

	records, err := f.auditLog.ListByActor(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(audit.ActionConsentUpdated, records[0].ActionType)
	s.Equal(s.userID.String(), records[0].SubjectEntityID)

	// The result timestamp is taken after every append landed.
	s.False(result.RecordedAt.Before(history[0].RecordedAt))
	s.False(result.RecordedAt.Before(records[0].RecordedAt))

	prev, ok := records[0].Detail["previous_value"].AsBool()
	s.Require().True(ok)
	s.False(prev)
	next, ok := records[0].Detail["new_value"].AsBool()
	s.Require().True(ok)
	s.True(next)
	ct, ok := records[0].Detail["consent_type"].AsString()
	s.Require().True(ok)
	s.Equal("PRIVACY_POLICY", ct)
}

func (s *IdentityServiceSuite) TestPreviousValueCapturedBeforeMutation() {
	f := newFixture(nil)
	f.seedProfile(s.T(), s.userID)

	_, err := f.svc.UpdateConsent(s.ctx, s.userID, domain.ConsentMarketing, true, "10.0.0.1", "curl/8.0")
	s.Require().NoError(err)
	_, err = f.svc.UpdateConsent(s.ctx, s.userID, domain.ConsentMarketing, false, "10.0.0.1", "curl/8.0")
	s.Require().NoError(err)

	records, err := f.auditLog.ListByActor(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(records, 2)

	// Most recent first: the revocation must report the granted state it
	// replaced, not a value derived from the incoming request.
	prev, ok := records[0].Detail["previous_value"].AsBool()
	s.Require().True(ok)
	s.True(prev)
	next, ok := records[0].Detail["new_value"].AsBool()
	s.Require().True(ok)
	s.False(next)
}

func (s *IdentityServiceSuite) TestRepeatedGrantAppendsEveryTime() {
	f := newFixture(nil)
	f.seedProfile(s.T(), s.userID)

	_, err := f.svc.UpdateConsent(s.ctx, s.userID, domain.ConsentTermsOfService, true, "10.0.0.1", "curl/8.0")
	s.Require().NoError(err)
	_, err = f.svc.UpdateConsent(s.ctx, s.userID, domain.ConsentTermsOfService, true, "10.0.0.1", "curl/8.0")
	s.Require().NoError(err)

	history, err := f.history.ListByUser(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Len(history, 2)

	records, err := f.auditLog.ListByActor(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(records, 2)

	// Second grant of an already-granted consent reports previous=true.
	prev, ok := records[0].Detail["previous_value"].AsBool()
	s.Require().True(ok)
	s.True(prev)
}

func (s *IdentityServiceSuite) TestRollbackOnHistoryFailure() {
	f := newFixture(func(stores *Stores) {
		stores.History = &failingHistory{Store: stores.History}
	})
	f.seedProfile(s.T(), s.userID)

	_, err := f.svc.UpdateConsent(s.ctx, s.userID, domain.ConsentPrivacyPolicy, true, "10.0.0.1", "curl/8.0")
	s.Require().Error(err)

	// The profile mutation rolled back with the failed append.
	p, err := f.profiles.FindByID(s.ctx, s.userID)
	s.Require().NoError(err)
	s.False(p.ConsentValue(domain.ConsentPrivacyPolicy))
	s.Equal(int64(0), p.Version)

	records, err := f.auditLog.ListByActor(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *IdentityServiceSuite) TestRollbackOnAuditFailure() {
	f := newFixture(func(stores *Stores) {
		stores.Audit = audit.NewRecorder(&failingAudit{})
	})
	f.seedProfile(s.T(), s.userID)

	_, err := f.svc.UpdateConsent(s.ctx, s.userID, domain.ConsentMarketing, true, "10.0.0.1", "curl/8.0")
	s.Require().Error(err)

	// History appended inside the failed unit of work must not survive.
	history, err := f.history.ListByUser(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Empty(history)

	p, err := f.profiles.FindByID(s.ctx, s.userID)
	s.Require().NoError(err)
	s.False(p.ConsentValue(domain.ConsentMarketing))
	s.Equal(int64(0), p.Version)
}

func (s *IdentityServiceSuite) TestVersionConflictLeavesNoTrace() {
	f := newFixture(func(stores *Stores) {
		stores.Profiles = &conflictingProfiles{Store: stores.Profiles}
	})
	f.seedProfile(s.T(), s.userID)

	_, err := f.svc.UpdateConsent(s.ctx, s.userID, domain.ConsentTermsOfService, true, "10.0.0.1", "curl/8.0")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	history, err := f.history.ListByUser(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Empty(history)

	records, err := f.auditLog.ListByActor(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *IdentityServiceSuite) TestUpdateConsentProfileNotFound() {
	f := newFixture(nil)

	_, err := f.svc.UpdateConsent(s.ctx, s.userID, domain.ConsentPrivacyPolicy, true, "10.0.0.1", "curl/8.0")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *IdentityServiceSuite) TestCurrentConsentsClosedEnumeration() {
	f := newFixture(nil)

	snapshots, err := f.svc.CurrentConsents(s.ctx, s.userID, "u1@example.com", "User One")
	s.Require().NoError(err)
	s.Require().Len(snapshots, 3)

	for _, snap := range snapshots {
		s.False(snap.Granted)
		s.Nil(snap.ChangedAt)
	}
	s.Equal(domain.ConsentTermsOfService, snapshots[0].ConsentType)
	s.Equal(domain.ConsentPrivacyPolicy, snapshots[1].ConsentType)
	s.Equal(domain.ConsentMarketing, snapshots[2].ConsentType)
}

func (s *IdentityServiceSuite) TestEnsureProfileCreatesOnce() {
	f := newFixture(nil)

	first, err := f.svc.EnsureProfile(s.ctx, s.userID, "u1@example.com", "User One")
	s.Require().NoError(err)
	s.Equal(int64(0), first.Version)

	second, err := f.svc.EnsureProfile(s.ctx, s.userID, "u1@example.com", "User One")
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)

	records, err := f.auditLog.ListByActor(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(audit.ActionProfileCreated, records[0].ActionType)
}

func (s *IdentityServiceSuite) TestConsentHistoryMostRecentFirst() {
	f := newFixture(nil)
	f.seedProfile(s.T(), s.userID)

	_, err := f.svc.UpdateConsent(s.ctx, s.userID, domain.ConsentMarketing, true, "10.0.0.1", "curl/8.0")
	s.Require().NoError(err)
	_, err = f.svc.UpdateConsent(s.ctx, s.userID, domain.ConsentMarketing, false, "10.0.0.1", "curl/8.0")
	s.Require().NoError(err)

	entries, err := f.svc.ConsentHistory(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.False(entries[0].Granted)
	s.True(entries[1].Granted)
}

func (s *IdentityServiceSuite) TestConsentHistoryReadsOutsideTransaction() {
	f := newFixture(nil)
	f.seedProfile(s.T(), s.userID)

	_, err := f.svc.UpdateConsent(s.ctx, s.userID, domain.ConsentMarketing, true, "10.0.0.1", "curl/8.0")
	s.Require().NoError(err)

	// Same stores, a runner that refuses every transaction: the reporting
	// path must still serve history.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	readOnly := New(f.profiles, f.history, failingTxRunner{}, logger, m, otel.Tracer("test"))

	entries, err := readOnly.ConsentHistory(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.True(entries[0].Granted)
}

func TestMemoryTxRequiresUserScope(t *testing.T) {
	f := newFixture(nil)

	err := f.txr.RunInTx(context.Background(), func(context.Context, Stores) error {
		return nil
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestRollbackDoesNotTouchOtherUsers(t *testing.T) {
	f := newFixture(nil)

	userA, err := domain.ParseUserID("7b1e9d2c-4f6a-4c1e-9b3d-2a8f5e7c6d01")
	require.NoError(t, err)
	userB, err := domain.ParseUserID("3c9f1a6e-8d2b-4e7c-a1f5-6b4d8e2c9a03")
	require.NoError(t, err)
	f.seedProfile(t, userA)
	f.seedProfile(t, userB)

	// User A's unit of work writes and then fails while user B commits a
	// consent grant in between. A's rollback must discard only A's writes.
	aStarted := make(chan struct{})
	bCommitted := make(chan struct{})
	aDone := make(chan error, 1)
	go func() {
		aDone <- f.txr.RunInTx(WithTxUser(context.Background(), userA), func(ctx context.Context, stores Stores) error {
			close(aStarted)
			if err := stores.History.Append(ctx, userA, domain.ConsentTermsOfService, true, "10.0.0.1", "curl/8.0"); err != nil {
				return err
			}
			<-bCommitted
			return dErrors.New(dErrors.CodeInternal, "simulated write failure")
		})
	}()

	<-aStarted
	_, err = f.svc.UpdateConsent(context.Background(), userB, domain.ConsentMarketing, true, "10.0.0.2", "curl/8.0")
	require.NoError(t, err)
	close(bCommitted)
	require.Error(t, <-aDone)

	// A's write rolled back.
	historyA, err := f.history.ListByUser(context.Background(), userA)
	require.NoError(t, err)
	assert.Empty(t, historyA)

	// B's committed update survived A's rollback.
	pB, err := f.profiles.FindByID(context.Background(), userB)
	require.NoError(t, err)
	assert.True(t, pB.ConsentValue(domain.ConsentMarketing))
	assert.Equal(t, int64(1), pB.Version)

	historyB, err := f.history.ListByUser(context.Background(), userB)
	require.NoError(t, err)
	assert.Len(t, historyB, 1)

	auditB, err := f.auditLog.ListByActor(context.Background(), userB)
	require.NoError(t, err)
	assert.Len(t, auditB, 1)
}

func TestConcurrentUpdatesSerializePerUser(t *testing.T) {
	f := newFixture(nil)
	userID, err := domain.ParseUserID("3c9f1a6e-8d2b-4e7c-a1f5-6b4d8e2c9a03")
	require.NoError(t, err)
	f.seedProfile(t, userID)

	const writers = 8
	done := make(chan error, writers)
	for i := 0; i < writers; i++ {
		granted := i%2 == 0
		go func(granted bool) {
			_, err := f.svc.UpdateConsent(context.Background(), userID, domain.ConsentMarketing, granted, "10.0.0.1", "curl/8.0")
			done <- err
		}(granted)
	}
	for i := 0; i < writers; i++ {
		require.NoError(t, <-done)
	}

	// Shard locking serializes writers on one user: every update lands and
	// the version counts them all.
	p, err := f.profiles.FindByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), p.Version)

	history, err := f.history.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, history, writers)
}

// failingHistory passes reads through and fails every append.
type failingHistory struct {
	consentlog.Store
}

func (f *failingHistory) Append(context.Context, domain.UserID, domain.ConsentType, bool, string, string) error {
	return dErrors.New(dErrors.CodeInternal, "history append failed")
}

// failingAudit fails every append.
type failingAudit struct{}

func (f *failingAudit) Append(context.Context, audit.Record) error {
	return dErrors.New(dErrors.CodeInternal, "audit append failed")
}

func (f *failingAudit) ListByActor(context.Context, domain.UserID) ([]audit.Record, error) {
	return nil, nil
}

// failingTxRunner refuses every transaction.
type failingTxRunner struct{}

func (failingTxRunner) RunInTx(context.Context, func(context.Context, Stores) error) error {
	return dErrors.New(dErrors.CodeInternal, "transactions unavailable")
}

// conflictingProfiles reads through and reports a version mismatch on update.
type conflictingProfiles struct {
	profile.Store
}

func (c *conflictingProfiles) Update(context.Context, *profile.Profile) error {
	return dErrors.New(dErrors.CodeConflict, "profile version mismatch")
}
