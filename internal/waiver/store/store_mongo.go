package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"roster/internal/waiver/models"
	id "roster/pkg/domain"
	"roster/pkg/platform/sentinel"
)

const (
	templatesCollection = "waiver_templates"
	countersCollection  = "counters"
	templateSeqKey      = "waiver_templates"
)

type templateDoc struct {
	ID          string     `bson:"_id"`
	Name        string     `bson:"name"`
	NameKey     string     `bson:"name_key"`
	DocumentRef string     `bson:"document_ref"`
	Version     int        `bson:"version"`
	Supersedes  string     `bson:"supersedes,omitempty"`
	Archived    bool       `bson:"archived"`
	CreatedAt   time.Time  `bson:"created_at"`
	ArchivedAt  *time.Time `bson:"archived_at,omitempty"`
	Seq         int64      `bson:"seq"`
}

// MongoStore persists templates as documents. A partial unique index on
// name_key over non-archived documents enforces active-name uniqueness.
type MongoStore struct {
	templates *mongo.Collection
	counters  *mongo.Collection
}

func NewMongo(db *mongo.Database) *MongoStore {
	return &MongoStore{
		templates: db.Collection(templatesCollection),
		counters:  db.Collection(countersCollection),
	}
}

// EnsureIndexes is idempotent; call once at startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.templates.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "name_key", Value: 1}},
			Options: options.Index().
				SetName("active_name_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "archived", Value: false}}),
		},
		{Keys: bson.D{{Key: "seq", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create waiver template indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: templateSeqKey}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "value", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocate template sequence: %w", err)
	}
	return counter.Value, nil
}

func (s *MongoStore) CreateIfNameAvailable(ctx context.Context, t *models.Template) error {
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return err
	}
	if _, err := s.templates.InsertOne(ctx, toTemplateDoc(t, seq)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert waiver template: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, templateID id.WaiverID) (*models.Template, error) {
	var doc templateDoc
	err := s.templates.FindOne(ctx, bson.D{{Key: "_id", Value: templateID.String()}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find waiver template: %w", err)
	}
	return fromTemplateDoc(doc)
}

func (s *MongoStore) List(ctx context.Context) ([]*models.Template, error) {
	cur, err := s.templates.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list waiver templates: %w", err)
	}
	var docs []templateDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode waiver templates: %w", err)
	}
	out := make([]*models.Template, 0, len(docs))
	for _, d := range docs {
		t, err := fromTemplateDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *MongoStore) Archive(ctx context.Context, templateID id.WaiverID, now time.Time) (*models.Template, error) {
	var doc templateDoc
	err := s.templates.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: templateID.String()}, {Key: "archived", Value: false}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "archived", Value: true}, {Key: "archived_at", Value: now}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.missingOrArchived(ctx, templateID)
	}
	if err != nil {
		return nil, fmt.Errorf("archive waiver template: %w", err)
	}
	return fromTemplateDoc(doc)
}

// Revise archives prev then inserts next. If the insert fails the archive is
// undone so the catalog never loses its active version.
func (s *MongoStore) Revise(ctx context.Context, prevID id.WaiverID, next *models.Template, now time.Time) error {
	res, err := s.templates.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: prevID.String()}, {Key: "archived", Value: false}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "archived", Value: true}, {Key: "archived_at", Value: now}}}},
	)
	if err != nil {
		return fmt.Errorf("archive previous template: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.missingOrArchived(ctx, prevID)
	}

	if err := s.CreateIfNameAvailable(ctx, next); err != nil {
		_, undoErr := s.templates.UpdateOne(ctx,
			bson.D{{Key: "_id", Value: prevID.String()}},
			bson.D{
				{Key: "$set", Value: bson.D{{Key: "archived", Value: false}}},
				{Key: "$unset", Value: bson.D{{Key: "archived_at", Value: ""}}},
			},
		)
		return errors.Join(err, undoErr)
	}
	return nil
}

func (s *MongoStore) missingOrArchived(ctx context.Context, templateID id.WaiverID) error {
	if _, err := s.FindByID(ctx, templateID); err != nil {
		return err
	}
	return sentinel.ErrConflict
}

func toTemplateDoc(t *models.Template, seq int64) templateDoc {
	doc := templateDoc{
		ID:          t.ID.String(),
		Name:        t.Name,
		NameKey:     t.NameKey(),
		DocumentRef: t.DocumentRef,
		Version:     t.Version,
		Archived:    t.Archived,
		CreatedAt:   t.CreatedAt,
		ArchivedAt:  t.ArchivedAt,
		Seq:         seq,
	}
	if t.Supersedes != nil {
		doc.Supersedes = t.Supersedes.String()
	}
	return doc
}

func fromTemplateDoc(doc templateDoc) (*models.Template, error) {
	templateID, err := id.ParseWaiverID(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("decode waiver template id: %w", err)
	}
	t := &models.Template{
		ID:          templateID,
		Name:        doc.Name,
		DocumentRef: doc.DocumentRef,
		Version:     doc.Version,
		Archived:    doc.Archived,
		CreatedAt:   doc.CreatedAt.UTC(),
	}
	if doc.ArchivedAt != nil {
		at := doc.ArchivedAt.UTC()
		t.ArchivedAt = &at
	}
	if doc.Supersedes != "" {
		prev, err := id.ParseWaiverID(doc.Supersedes)
		if err != nil {
			return nil, fmt.Errorf("decode supersedes id: %w", err)
		}
		t.Supersedes = &prev
	}
	return t, nil
}
