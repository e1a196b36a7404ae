package profile

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"othertales/pkg/domain"
	dErrors "othertales/pkg/domain-errors"
	txcontext "othertales/pkg/platform/tx"
)

// PostgresStore implements Store over the profiles table. Statements join an
// enclosing transaction when one is present in the context.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const uniqueViolation = "23505"

func (s *PostgresStore) Create(ctx context.Context, p *Profile) error {
	query := `
		INSERT INTO profiles (
			id, email, display_name, avatar_url, plan,
			terms_accepted, terms_accepted_at,
			privacy_accepted, privacy_accepted_at,
			marketing_accepted, marketing_accepted_at,
			created_at, updated_at, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	terms := p.Consents[domain.ConsentTermsOfService]
	privacy := p.Consents[domain.ConsentPrivacyPolicy]
	marketing := p.Consents[domain.ConsentMarketing]

	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(p.ID), p.Email, p.DisplayName, p.AvatarURL, string(p.Plan),
		terms.Granted, terms.GrantedAt,
		privacy.Granted, privacy.GrantedAt,
		marketing.Granted, marketing.GrantedAt,
		p.CreatedAt, p.UpdatedAt, p.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return dErrors.Wrap(err, dErrors.CodeConflict, "profile already exists")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "insert profile")
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.UserID) (*Profile, error) {
	query := `
		SELECT id, email, display_name, avatar_url, plan,
			   terms_accepted, terms_accepted_at,
			   privacy_accepted, privacy_accepted_at,
			   marketing_accepted, marketing_accepted_at,
			   created_at, updated_at, version
		FROM profiles
		WHERE id = $1
	`
	var (
		p           Profile
		rawID       uuid.UUID
		plan        string
		terms       ConsentState
		privacy     ConsentState
		marketing   ConsentState
		termsAt     sql.NullTime
		privacyAt   sql.NullTime
		marketingAt sql.NullTime
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(id)).Scan(
		&rawID, &p.Email, &p.DisplayName, &p.AvatarURL, &plan,
		&terms.Granted, &termsAt,
		&privacy.Granted, &privacyAt,
		&marketing.Granted, &marketingAt,
		&p.CreatedAt, &p.UpdatedAt, &p.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "select profile")
	}

	p.ID = domain.UserID(rawID)
	p.Plan = Plan(plan)
	terms.GrantedAt = nullableTime(termsAt)
	privacy.GrantedAt = nullableTime(privacyAt)
	marketing.GrantedAt = nullableTime(marketingAt)
	p.Consents = map[domain.ConsentType]ConsentState{
		domain.ConsentTermsOfService: terms,
		domain.ConsentPrivacyPolicy:  privacy,
		domain.ConsentMarketing:      marketing,
	}
	return &p, nil
}

// Update applies the aggregate with a version compare-and-swap. Zero rows
// affected means another writer won the race.
func (s *PostgresStore) Update(ctx context.Context, p *Profile) error {
	query := `
		UPDATE profiles
		SET email = $2, display_name = $3, avatar_url = $4, plan = $5,
			terms_accepted = $6, terms_accepted_at = $7,
			privacy_accepted = $8, privacy_accepted_at = $9,
			marketing_accepted = $10, marketing_accepted_at = $11,
			updated_at = $12, version = version + 1
		WHERE id = $1 AND version = $13
	`
	terms := p.Consents[domain.ConsentTermsOfService]
	privacy := p.Consents[domain.ConsentPrivacyPolicy]
	marketing := p.Consents[domain.ConsentMarketing]

	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(p.ID), p.Email, p.DisplayName, p.AvatarURL, string(p.Plan),
		terms.Granted, terms.GrantedAt,
		privacy.Granted, privacy.GrantedAt,
		marketing.Granted, marketing.GrantedAt,
		p.UpdatedAt, p.Version,
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "update profile")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "update profile: rows affected")
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeConflict, "profile version mismatch")
	}
	p.Version++
	return nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	ts := t.Time
	return &ts
}
