package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"roster/internal/event/models"
	id "roster/pkg/domain"
	"roster/pkg/platform/sentinel"
)

// PostgresStore keeps each aggregate as one JSONB document next to a revision
// column. Update is a single UPDATE ... WHERE revision = $n, so no explicit
// transaction is needed.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, e *models.Event) error {
	e.Revision = 1
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, revision, starts_at, is_draft, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(e.ID), e.Revision, e.StartsAt, e.IsDraft, doc, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT revision, doc FROM events WHERE id = $1`, uuid.UUID(eventID))
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Event, error) {
	return s.query(ctx, `SELECT revision, doc FROM events ORDER BY starts_at, id`)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Event, error) {
	probe, err := json.Marshal([]map[string]string{{"user_id": userID.String()}})
	if err != nil {
		return nil, fmt.Errorf("marshal user probe: %w", err)
	}
	return s.query(ctx, `
		SELECT revision, doc FROM events
		WHERE doc->'adults' @> $1::jsonb OR doc->'children' @> $1::jsonb
		ORDER BY starts_at, id`, string(probe))
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, e *models.Event) error {
	next := e.Revision + 1
	snapshot := *e
	snapshot.Revision = next
	doc, err := json.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET revision = $3, starts_at = $4, is_draft = $5, doc = $6, updated_at = $7
		WHERE id = $1 AND revision = $2`,
		uuid.UUID(e.ID), e.Revision, next, e.StartsAt, e.IsDraft, doc, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, uuid.UUID(e.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("check event: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	e.Revision = next
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*models.Event, error) {
	var (
		revision int64
		doc      []byte
	)
	if err := row.Scan(&revision, &doc); err != nil {
		return nil, err
	}
	var e models.Event
	if err := json.Unmarshal(doc, &e); err != nil {
		return nil, fmt.Errorf("decode event document: %w", err)
	}
	e.Revision = revision
	return &e, nil
}
