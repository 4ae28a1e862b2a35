package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"roster/internal/waiver/models"
	id "roster/pkg/domain"
	"roster/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists templates in PostgreSQL. A partial unique index on
// lower(name) WHERE NOT archived enforces active-name uniqueness.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const templateColumns = `id, name, body, version, supersedes, archived, created_at, archived_at`

func (s *PostgresStore) CreateIfNameAvailable(ctx context.Context, t *models.Template) error {
	if err := insertTemplate(ctx, s.db, t); err != nil {
		return err
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTemplate(ctx context.Context, db execer, t *models.Template) error {
	var supersedes uuid.NullUUID
	if t.Supersedes != nil {
		supersedes = uuid.NullUUID{UUID: uuid.UUID(*t.Supersedes), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO waiver_templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(t.ID), t.Name, t.DocumentRef, t.Version, supersedes, t.Archived, t.CreatedAt, nullTime(t.ArchivedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert waiver template: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, templateID id.WaiverID) (*models.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM waiver_templates WHERE id = $1`, uuid.UUID(templateID))
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find waiver template: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM waiver_templates ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list waiver templates: %w", err)
	}
	defer rows.Close()

	var out []*models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan waiver template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list waiver templates: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Archive(ctx context.Context, templateID id.WaiverID, now time.Time) (*models.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE waiver_templates SET archived = TRUE, archived_at = $2
		WHERE id = $1 AND NOT archived
		RETURNING `+templateColumns,
		uuid.UUID(templateID), now,
	)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missingOrArchived(ctx, templateID)
	}
	if err != nil {
		return nil, fmt.Errorf("archive waiver template: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Revise(ctx context.Context, prevID id.WaiverID, next *models.Template, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin revise: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE waiver_templates SET archived = TRUE, archived_at = $2
		WHERE id = $1 AND NOT archived`,
		uuid.UUID(prevID), now,
	)
	if err != nil {
		return fmt.Errorf("archive previous template: %w", err)
	}
	archived, err := touchedRow(res)
	if err != nil {
		return fmt.Errorf("archive previous template: %w", err)
	}
	if !archived {
		return s.missingOrArchived(ctx, prevID)
	}
	if err := insertTemplate(ctx, tx, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit revise: %w", err)
	}
	return nil
}

// touchedRow reports whether a conditional write matched a row.
func touchedRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) missingOrArchived(ctx context.Context, templateID id.WaiverID) error {
	if _, err := s.FindByID(ctx, templateID); err != nil {
		return err
	}
	return sentinel.ErrConflict
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row scanner) (*models.Template, error) {
	var (
		t          models.Template
		rawID      uuid.UUID
		supersedes uuid.NullUUID
		archivedAt sql.NullTime
	)
	if err := row.Scan(&rawID, &t.Name, &t.DocumentRef, &t.Version, &supersedes, &t.Archived, &t.CreatedAt, &archivedAt); err != nil {
		return nil, err
	}
	t.ID = id.WaiverID(rawID)
	if supersedes.Valid {
		prev := id.WaiverID(supersedes.UUID)
		t.Supersedes = &prev
	}
	if archivedAt.Valid {
		at := archivedAt.Time
		t.ArchivedAt = &at
	}
	return &t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
