package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "roster/pkg/domain"
	audit "roster/pkg/platform/audit"
)

// Store appends audit events to the audit_events table. It is the durable
// sink when no Kafka brokers are configured.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, category, action, event_id, user_id, child_id, registration_id, waiver_id,
			reason, actor_id, request_id, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.New(),
		string(category),
		event.Action,
		nullUUID(uuid.UUID(event.EventID)),
		nullUUID(uuid.UUID(event.UserID)),
		nullUUID(uuid.UUID(event.ChildID)),
		nullUUID(uuid.UUID(event.RegistrationID)),
		nullUUID(uuid.UUID(event.WaiverID)),
		event.Reason,
		event.ActorID,
		event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByEvent returns the audit trail of an event, oldest first.
func (s *Store) ListByEvent(ctx context.Context, eventID id.EventID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, action, event_id, user_id, child_id, registration_id, waiver_id,
		       reason, actor_id, request_id, occurred_at
		FROM audit_events
		WHERE event_id = $1
		ORDER BY occurred_at, id`, uuid.UUID(eventID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e                                      audit.Event
			category                               string
			evID, userID, childID, regID, waiverID uuid.NullUUID
		)
		if err := rows.Scan(&category, &e.Action, &evID, &userID, &childID, &regID, &waiverID,
			&e.Reason, &e.ActorID, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		e.EventID = id.EventID(evID.UUID)
		e.UserID = id.UserID(userID.UUID)
		e.ChildID = id.ChildID(childID.UUID)
		e.RegistrationID = id.RegistrationID(regID.UUID)
		e.WaiverID = id.WaiverID(waiverID.UUID)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return out, nil
}

func nullUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}
