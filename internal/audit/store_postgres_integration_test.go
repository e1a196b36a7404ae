//go:build integration

package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"othertales/internal/audit"
	"othertales/internal/consentlog"
	"othertales/internal/profile"
	"othertales/pkg/domain"
	txcontext "othertales/pkg/platform/tx"
	"othertales/pkg/testutil/containers"
)

type PostgresAuditSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *audit.PostgresStore
	recorder *audit.Recorder
}

func TestPostgresAuditSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAuditSuite))
}

func (s *PostgresAuditSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T(), "../../migrations")
	s.store = audit.NewPostgres(s.postgres.DB)
	s.recorder = audit.NewRecorder(s.store)
}

func (s *PostgresAuditSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(),
		"audit_log", "outbox", "consent_log", "profiles"))
}

func (s *PostgresAuditSuite) TestAppendWritesLogAndOutbox() {
	ctx := context.Background()
	actor := domain.UserID(uuid.New())

	err := s.recorder.Record(ctx, audit.Record{
		ActorUserID:     &actor,
		ActionType:      audit.ActionConsentUpdated,
		SubjectEntityID: actor.String(),
		Detail: audit.Detail{
			"consent_type":   audit.String("PRIVACY_POLICY"),
			"previous_value": audit.Bool(false),
			"new_value":      audit.Bool(true),
		},
		IPAddress: "10.0.0.1",
		UserAgent: "curl/8.0",
	})
	s.Require().NoError(err)

	records, err := s.store.ListByActor(ctx, actor)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(audit.ActionConsentUpdated, records[0].ActionType)
	prev, ok := records[0].Detail["previous_value"].AsBool()
	s.Require().True(ok)
	s.False(prev)

	entries, err := s.store.FetchOutbox(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionConsentUpdated, entries[0].EventType)
	s.Equal(actor.String(), entries[0].Key)

	s.Require().NoError(s.store.DeleteOutbox(ctx, entries[0].ID))
	entries, err = s.store.FetchOutbox(ctx, 10)
	s.Require().NoError(err)
	s.Empty(entries)
}

// TestRollbackLeavesNoRows runs the full consent unit of work inside a
// transaction that is rolled back: none of the three writes may survive.
func (s *PostgresAuditSuite) TestRollbackLeavesNoRows() {
	ctx := context.Background()
	profiles := profile.NewPostgres(s.postgres.DB)
	history := consentlog.NewPostgres(s.postgres.DB)

	userID := domain.UserID(uuid.New())
	p := profile.New(userID, "u1@example.com", "User One", time.Now().UTC())
	s.Require().NoError(profiles.Create(ctx, p))

	tx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	txCtx := txcontext.WithTx(ctx, tx)

	loaded, err := profiles.FindByID(txCtx, userID)
	s.Require().NoError(err)
	loaded.UpdateConsent(domain.ConsentMarketing, true, time.Now().UTC())
	s.Require().NoError(profiles.Update(txCtx, loaded))
	s.Require().NoError(history.Append(txCtx, userID, domain.ConsentMarketing, true, "10.0.0.1", "curl/8.0"))
	s.Require().NoError(s.recorder.Record(txCtx, audit.Record{
		ActorUserID: &userID,
		ActionType:  audit.ActionConsentUpdated,
	}))

	s.Require().NoError(tx.Rollback())

	stored, err := profiles.FindByID(ctx, userID)
	s.Require().NoError(err)
	s.False(stored.ConsentValue(domain.ConsentMarketing))
	s.Equal(int64(0), stored.Version)

	logRecords, err := history.ListByUser(ctx, userID)
	s.Require().NoError(err)
	s.Empty(logRecords)

	auditRecords, err := s.store.ListByActor(ctx, userID)
	s.Require().NoError(err)
	s.Empty(auditRecords)

	entries, err := s.store.FetchOutbox(ctx, 10)
	s.Require().NoError(err)
	s.Empty(entries)
}

// TestCommitPersistsAllRows is the committed counterpart.
func (s *PostgresAuditSuite) TestCommitPersistsAllRows() {
	ctx := context.Background()
	profiles := profile.NewPostgres(s.postgres.DB)
	history := consentlog.NewPostgres(s.postgres.DB)

	userID := domain.UserID(uuid.New())
	p := profile.New(userID, "u1@example.com", "User One", time.Now().UTC())
	s.Require().NoError(profiles.Create(ctx, p))

	tx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	txCtx := txcontext.WithTx(ctx, tx)

	loaded, err := profiles.FindByID(txCtx, userID)
	s.Require().NoError(err)
	loaded.UpdateConsent(domain.ConsentMarketing, true, time.Now().UTC())
	s.Require().NoError(profiles.Update(txCtx, loaded))
	s.Require().NoError(history.Append(txCtx, userID, domain.ConsentMarketing, true, "10.0.0.1", "curl/8.0"))
	s.Require().NoError(s.recorder.Record(txCtx, audit.Record{
		ActorUserID: &userID,
		ActionType:  audit.ActionConsentUpdated,
	}))

	s.Require().NoError(tx.Commit())

	stored, err := profiles.FindByID(ctx, userID)
	s.Require().NoError(err)
	s.True(stored.ConsentValue(domain.ConsentMarketing))
	s.Equal(int64(1), stored.Version)

	logRecords, err := history.ListByUser(ctx, userID)
	s.Require().NoError(err)
	s.Len(logRecords, 1)

	auditRecords, err := s.store.ListByActor(ctx, userID)
	s.Require().NoError(err)
	s.Len(auditRecords, 1)

	entries, err := s.store.FetchOutbox(ctx, 10)
	s.Require().NoError(err)
	s.Len(entries, 1)
}
