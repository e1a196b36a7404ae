package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"othertales/pkg/domain"
	dErrors "othertales/pkg/domain-errors"
	txcontext "othertales/pkg/platform/tx"
)

// PostgresStore implements Store using the transactional outbox pattern.
// Each append writes the audit_log row and a matching outbox row in the same
// statement batch; when a transaction is present in the context both rows
// commit or roll back together. The outbox relay publishes rows to Kafka
// after commit.
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

// outboxPayload is the JSON structure published to Kafka by the relay.
type outboxPayload struct {
	ID              string          `json:"id"`
	ActorUserID     string          `json:"actor_user_id,omitempty"`
	ActionType      string          `json:"action_type"`
	SubjectEntityID string          `json:"subject_entity_id"`
	Detail          json.RawMessage `json:"detail,omitempty"`
	IPAddress       string          `json:"ip_address,omitempty"`
	UserAgent       string          `json:"user_agent,omitempty"`
	RecordedAt      string          `json:"recorded_at"`
}

func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	var detailBytes []byte
	if rec.Detail != nil {
		b, err := json.Marshal(rec.Detail)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "marshal audit detail")
		}
		detailBytes = b
	}

	var actorID *uuid.UUID
	if rec.ActorUserID != nil {
		uid := uuid.UUID(*rec.ActorUserID)
		actorID = &uid
	}

	query := `
		INSERT INTO audit_log (id, actor_user_id, action_type, subject_entity_id, detail, ip_address, user_agent, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		rec.ID,
		actorID,
		rec.ActionType,
		rec.SubjectEntityID,
		detailBytes,
		rec.IPAddress,
		rec.UserAgent,
		rec.RecordedAt,
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "insert audit record")
	}

	payload := outboxPayload{
		ID:              rec.ID.String(),
		ActionType:      rec.ActionType,
		SubjectEntityID: rec.SubjectEntityID,
		Detail:          detailBytes,
		IPAddress:       rec.IPAddress,
		UserAgent:       rec.UserAgent,
		RecordedAt:      rec.RecordedAt.Format(time.RFC3339Nano),
	}
	if actorID != nil {
		payload.ActorUserID = actorID.String()
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "marshal outbox payload")
	}

	outboxQuery := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	aggregateType := "audit"
	aggregateID := rec.ID.String()
	if actorID != nil {
		aggregateType = "user"
		aggregateID = actorID.String()
	}
	_, err = s.execer(ctx).ExecContext(ctx, outboxQuery,
		uuid.New(),
		aggregateType,
		aggregateID,
		rec.ActionType,
		payloadBytes,
		time.Now().UTC(),
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "insert outbox entry")
	}
	return nil
}

func (s *PostgresStore) ListByActor(ctx context.Context, userID domain.UserID) ([]Record, error) {
	query := `
		SELECT id, actor_user_id, action_type, subject_entity_id, detail, ip_address, user_agent, recorded_at
		FROM audit_log
		WHERE actor_user_id = $1
		ORDER BY recorded_at DESC, id DESC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query audit records")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec         Record
			actorID     *uuid.UUID
			detailBytes []byte
		)
		if err := rows.Scan(&rec.ID, &actorID, &rec.ActionType, &rec.SubjectEntityID, &detailBytes, &rec.IPAddress, &rec.UserAgent, &rec.RecordedAt); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan audit record")
		}
		if actorID != nil {
			uid := domain.UserID(*actorID)
			rec.ActorUserID = &uid
		}
		if len(detailBytes) > 0 {
			if err := json.Unmarshal(detailBytes, &rec.Detail); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "unmarshal audit detail")
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "iterate audit records")
	}
	return records, nil
}

// OutboxEntry is one pending Kafka publication.
type OutboxEntry struct {
	ID        uuid.UUID
	EventType string
	Key       string
	Payload   []byte
}

// FetchOutbox returns up to limit pending entries, oldest first.
func (s *PostgresStore) FetchOutbox(ctx context.Context, limit int) ([]OutboxEntry, error) {
	query := `
		SELECT id, event_type, aggregate_id, payload
		FROM outbox
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query outbox")
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.EventType, &e.Key, &e.Payload); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan outbox entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "iterate outbox")
	}
	return entries, nil
}

// DeleteOutbox removes an entry after successful publication.
func (s *PostgresStore) DeleteOutbox(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = $1`, id); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete outbox entry")
	}
	return nil
}
