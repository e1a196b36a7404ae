// Package service orchestrates consent updates: the atomic unit of work that
// mutates the profile aggregate, appends history, and records the audit
// trail. Handlers stay thin; stores stay dumb.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"othertales/internal/audit"
	"othertales/internal/consentlog"
	"othertales/internal/platform/metrics"
	"othertales/internal/profile"
	"othertales/pkg/domain"
	dErrors "othertales/pkg/domain-errors"
)

// Service coordinates the consent write path and the profile read path.
type Service struct {
	profiles profile.Store
	history  consentlog.Store
	txr      TxRunner
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

func New(profiles profile.Store, history consentlog.Store, txr TxRunner, logger *slog.Logger, m *metrics.Metrics, tracer trace.Tracer) *Service {
	return &Service{
		profiles: profiles,
		history:  history,
		txr:      txr,
		logger:   logger,
		metrics:  m,
		tracer:   tracer,
	}
}

// UpdateResult reports a committed consent change. RecordedAt is stamped
// after every write of the unit succeeded, never before.
type UpdateResult struct {
	ConsentType domain.ConsentType
	Granted     bool
	RecordedAt  time.Time
}

// UpdateConsent applies one consent change as a single atomic unit: load the
// profile, capture the prior value, mutate, persist with a version check,
// append the history record, and write the audit entry. Any failure rolls
// the whole unit back. The prior value is always read from the loaded
// aggregate before mutation, never derived from the incoming value.
func (s *Service) UpdateConsent(ctx context.Context, userID domain.UserID, consentType domain.ConsentType, granted bool, ipAddress, userAgent string) (*UpdateResult, error) {
	ctx, span := s.tracer.Start(ctx, "identity.UpdateConsent",
		trace.WithAttributes(
			attribute.String("consent.type", string(consentType)),
			attribute.Bool("consent.granted", granted),
		))
	defer span.End()

	start := time.Now()
	ctx = WithTxUser(ctx, userID)

	var result *UpdateResult
	err := s.txr.RunInTx(ctx, func(ctx context.Context, stores Stores) error {
		p, err := stores.Profiles.FindByID(ctx, userID)
		if err != nil {
			return err
		}

		previous := p.ConsentValue(consentType)

		p.UpdateConsent(consentType, granted, time.Now().UTC())
		if err := stores.Profiles.Update(ctx, p); err != nil {
			return err
		}

		if err := stores.History.Append(ctx, userID, consentType, granted, ipAddress, userAgent); err != nil {
			return err
		}

		actor := userID
		if err := stores.Audit.Record(ctx, audit.Record{
			ActorUserID:     &actor,
			ActionType:      audit.ActionConsentUpdated,
			SubjectEntityID: userID.String(),
			Detail: audit.Detail{
				"consent_type":   audit.String(string(consentType)),
				"previous_value": audit.Bool(previous),
				"new_value":      audit.Bool(granted),
			},
			IPAddress: ipAddress,
			UserAgent: userAgent,
		}); err != nil {
			return err
		}

		// Stamped only once all three writes landed, so the reported
		// time is never earlier than the history or audit rows.
		result = &UpdateResult{
			ConsentType: consentType,
			Granted:     p.ConsentValue(consentType),
			RecordedAt:  time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			s.metrics.ConsentConflicts.Inc()
			s.logger.Warn("consent update conflict",
				"user_id", userID.String(),
				"consent_type", string(consentType))
		}
		return nil, err
	}

	s.metrics.IncConsentUpdate(string(consentType), granted)
	s.metrics.UpdateDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("consent updated",
		"user_id", userID.String(),
		"consent_type", string(consentType),
		"granted", granted)
	return result, nil
}

// CurrentConsents returns the state of every consent type in the closed
// enumeration for a user, creating the profile on first authenticated access.
func (s *Service) CurrentConsents(ctx context.Context, userID domain.UserID, email, displayName string) ([]profile.ConsentSnapshot, error) {
	p, err := s.EnsureProfile(ctx, userID, email, displayName)
	if err != nil {
		return nil, err
	}
	return p.Snapshot(), nil
}

// Profile returns the full aggregate for the profile read path.
func (s *Service) Profile(ctx context.Context, userID domain.UserID, email, displayName string) (*profile.Profile, error) {
	return s.EnsureProfile(ctx, userID, email, displayName)
}

// EnsureProfile loads a profile, creating it on first authenticated access.
// Creation and its audit entry commit together. A concurrent create loses
// the race cleanly: conflict means someone else won, so reload.
func (s *Service) EnsureProfile(ctx context.Context, userID domain.UserID, email, displayName string) (*profile.Profile, error) {
	p, err := s.profiles.FindByID(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, err
	}

	ctx = WithTxUser(ctx, userID)
	created := profile.New(userID, email, displayName, time.Now().UTC())
	err = s.txr.RunInTx(ctx, func(ctx context.Context, stores Stores) error {
		if err := stores.Profiles.Create(ctx, created); err != nil {
			return err
		}
		actor := userID
		return stores.Audit.Record(ctx, audit.Record{
			ActorUserID:     &actor,
			ActionType:      audit.ActionProfileCreated,
			SubjectEntityID: userID.String(),
			Detail: audit.Detail{
				"email": audit.String(email),
				"plan":  audit.String(string(profile.PlanFree)),
			},
		})
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			return s.profiles.FindByID(ctx, userID)
		}
		return nil, err
	}

	s.metrics.ProfilesCreated.Inc()
	s.logger.Info("profile created", "user_id", userID.String())
	return created, nil
}

// ConsentHistory returns the append-only change log for a user, most recent
// first. Reporting path only; it reads the store directly, no transaction.
func (s *Service) ConsentHistory(ctx context.Context, userID domain.UserID) ([]HistoryEntry, error) {
	records, err := s.history.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, HistoryEntry{
			ConsentType: rec.ConsentType,
			Granted:     rec.Granted,
			RecordedAt:  rec.RecordedAt,
		})
	}
	return entries, nil
}

// HistoryEntry is one consent change as exposed on the reporting path.
type HistoryEntry struct {
	ConsentType domain.ConsentType
	Granted     bool
	RecordedAt  time.Time
}
