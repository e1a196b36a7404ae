package consentlog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"othertales/pkg/domain"
	dErrors "othertales/pkg/domain-errors"
	txcontext "othertales/pkg/platform/tx"
)

// PostgresStore implements Store over the consent_log table. Inserts join an
// enclosing transaction when one is present in the context.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, userID domain.UserID, consentType domain.ConsentType, granted bool, ipAddress, userAgent string) error {
	query := `
		INSERT INTO consent_log (id, user_id, consent_type, granted, ip_address, user_agent, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		uuid.UUID(userID),
		string(consentType),
		granted,
		ipAddress,
		userAgent,
		time.Now().UTC(),
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "insert consent log record")
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID domain.UserID) ([]Record, error) {
	query := `
		SELECT id, user_id, consent_type, granted, ip_address, user_agent, recorded_at
		FROM consent_log
		WHERE user_id = $1
		ORDER BY recorded_at DESC, id DESC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query consent log")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec         Record
			rawID       uuid.UUID
			rawUserID   uuid.UUID
			consentType string
		)
		if err := rows.Scan(&rawID, &rawUserID, &consentType, &rec.Granted, &rec.IPAddress, &rec.UserAgent, &rec.RecordedAt); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan consent log record")
		}
		rec.ID = rawID
		rec.UserID = domain.UserID(rawUserID)
		rec.ConsentType = domain.ConsentType(consentType)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "iterate consent log")
	}
	return records, nil
}
