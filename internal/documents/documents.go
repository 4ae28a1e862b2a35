// Package documents lists waiver PDFs held in object storage, paginated for
// the admin console.
package documents

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"
	"time"

	dErrors "roster/pkg/domain-errors"
)

const (
	DefaultPage  = 1
	DefaultLimit = 8
	MaxLimit     = 100

	templatePrefix  = "waivers/templates/"
	completedPrefix = "waivers/completed/"
)

// Kind selects which folder of waiver documents to list.
type Kind string

const (
	KindTemplate  Kind = "template"
	KindCompleted Kind = "completed"
)

// Prefix returns the object key prefix for the kind.
func (k Kind) Prefix() (string, error) {
	switch k {
	case KindTemplate, "":
		return templatePrefix, nil
	case KindCompleted:
		return completedPrefix, nil
	default:
		return "", dErrors.New(dErrors.CodeBadRequest, "type must be template or completed")
	}
}

// Object is one entry returned by the object store.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Lister enumerates every object under a prefix.
type Lister interface {
	List(ctx context.Context, prefix string) ([]Object, error)
}

type Item struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type Page struct {
	Items      []Item `json:"items"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalItems int    `json:"total_items"`
	TotalPages int    `json:"total_pages"`
}

// Service paginates the filtered listing in memory.
type Service struct {
	lister  Lister
	baseURL string
}

func NewService(lister Lister, baseURL string) *Service {
	return &Service{lister: lister, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// List returns one page of PDF documents of the given kind. Non-positive page
// or limit fall back to the defaults; limit is capped at MaxLimit.
func (s *Service) List(ctx context.Context, kind Kind, page, limit int) (*Page, error) {
	prefix, err := kind.Prefix()
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	objects, err := s.lister.List(ctx, prefix)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "document listing timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeCollaboratorUnavailable, "failed to list documents")
	}

	items := make([]Item, 0, len(objects))
	for _, o := range objects {
		if !strings.HasPrefix(o.Key, prefix) || !strings.HasSuffix(strings.ToLower(o.Key), ".pdf") {
			continue
		}
		items = append(items, Item{
			Key:        o.Key,
			Name:       path.Base(o.Key),
			URL:        s.baseURL + "/" + o.Key,
			Size:       o.Size,
			ModifiedAt: o.LastModified,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Key < items[j].Key })

	total := len(items)
	result := &Page{
		Items:      []Item{},
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: (total + limit - 1) / limit,
	}
	start := (page - 1) * limit
	if start >= total {
		return result, nil
	}
	end := min(start+limit, total)
	result.Items = items[start:end]
	return result, nil
}
