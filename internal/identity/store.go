package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	id "roster/pkg/domain"
	"roster/pkg/platform/sentinel"
)

// InMemoryStore keeps children per parent in onboarding order.
type InMemoryStore struct {
	mu       sync.RWMutex
	byParent map[id.UserID][]*Child
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byParent: make(map[id.UserID][]*Child)}
}

func (s *InMemoryStore) Add(_ context.Context, child *Child) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *child
	s.byParent[child.ParentID] = append(s.byParent[child.ParentID], &c)
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, parentID id.UserID, childID id.ChildID) (*Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.byParent[parentID] {
		if c.ID == childID {
			out := *c
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByParent(_ context.Context, parentID id.UserID) ([]*Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Child, 0, len(s.byParent[parentID]))
	for _, c := range s.byParent[parentID] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// PostgresStore reads and writes the children table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const childColumns = `id, parent_id, first_name, last_name, birthday, gender, created_at`

func (s *PostgresStore) Add(ctx context.Context, child *Child) error {
	var birthday sql.NullTime
	if child.Birthday != nil {
		birthday = sql.NullTime{Time: *child.Birthday, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO children (`+childColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(child.ID), uuid.UUID(child.ParentID), child.FirstName, child.LastName, birthday, child.Gender, child.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert child: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, parentID id.UserID, childID id.ChildID) (*Child, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+childColumns+` FROM children WHERE id = $1 AND parent_id = $2`,
		uuid.UUID(childID), uuid.UUID(parentID),
	)
	child, err := scanChild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find child: %w", err)
	}
	return child, nil
}

func (s *PostgresStore) ListByParent(ctx context.Context, parentID id.UserID) ([]*Child, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+childColumns+` FROM children WHERE parent_id = $1 ORDER BY created_at, id`,
		uuid.UUID(parentID),
	)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var out []*Child
	for rows.Next() {
		child, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		out = append(out, child)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChild(row scanner) (*Child, error) {
	var (
		c        Child
		childID  uuid.UUID
		parentID uuid.UUID
		birthday sql.NullTime
	)
	if err := row.Scan(&childID, &parentID, &c.FirstName, &c.LastName, &birthday, &c.Gender, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.ID = id.ChildID(childID)
	c.ParentID = id.UserID(parentID)
	if birthday.Valid {
		b := birthday.Time
		c.Birthday = &b
	}
	return &c, nil
}
