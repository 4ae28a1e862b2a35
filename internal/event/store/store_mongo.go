package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"roster/internal/event/models"
	id "roster/pkg/domain"
	"roster/pkg/platform/sentinel"
)

const eventsCollection = "events"

// eventDoc wraps the aggregate's JSON form, converted to BSON so nested
// registrant fields stay queryable.
type eventDoc struct {
	ID       string    `bson:"_id"`
	Revision int64     `bson:"revision"`
	StartsAt time.Time `bson:"starts_at"`
	Doc      bson.Raw  `bson:"doc"`
}

// MongoStore performs the revision check with ReplaceOne filtered on both
// _id and revision.
type MongoStore struct {
	events *mongo.Collection
}

func NewMongo(db *mongo.Database) *MongoStore {
	return &MongoStore{events: db.Collection(eventsCollection)}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "starts_at", Value: 1}}},
		{Keys: bson.D{{Key: "doc.adults.user_id", Value: 1}}},
		{Keys: bson.D{{Key: "doc.children.user_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create event indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, e *models.Event) error {
	e.Revision = 1
	doc, err := toDoc(e)
	if err != nil {
		return err
	}
	if _, err := s.events.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	var doc eventDoc
	err := s.events.FindOne(ctx, bson.D{{Key: "_id", Value: eventID.String()}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	return fromDoc(doc)
}

func (s *MongoStore) List(ctx context.Context) ([]*models.Event, error) {
	return s.find(ctx, bson.D{})
}

func (s *MongoStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Event, error) {
	uid := userID.String()
	return s.find(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "doc.adults.user_id", Value: uid}},
		bson.D{{Key: "doc.children.user_id", Value: uid}},
	}}})
}

func (s *MongoStore) find(ctx context.Context, filter bson.D) ([]*models.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "starts_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.events.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer cur.Close(ctx)

	var out []*models.Event
	for cur.Next(ctx) {
		var doc eventDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		e, err := fromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Update(ctx context.Context, e *models.Event) error {
	snapshot := *e
	snapshot.Revision = e.Revision + 1
	doc, err := toDoc(&snapshot)
	if err != nil {
		return err
	}
	res, err := s.events.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: e.ID.String()}, {Key: "revision", Value: e.Revision}},
		doc,
	)
	if err != nil {
		return fmt.Errorf("replace event: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := s.events.CountDocuments(ctx, bson.D{{Key: "_id", Value: e.ID.String()}})
		if err != nil {
			return fmt.Errorf("check event: %w", err)
		}
		if n == 0 {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	e.Revision = snapshot.Revision
	return nil
}

func toDoc(e *models.Event) (eventDoc, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return eventDoc{}, fmt.Errorf("marshal event: %w", err)
	}
	var body bson.D
	if err := bson.UnmarshalExtJSON(data, false, &body); err != nil {
		return eventDoc{}, fmt.Errorf("convert event document: %w", err)
	}
	raw, err := bson.Marshal(body)
	if err != nil {
		return eventDoc{}, fmt.Errorf("encode event document: %w", err)
	}
	return eventDoc{
		ID:       e.ID.String(),
		Revision: e.Revision,
		StartsAt: e.StartsAt.UTC(),
		Doc:      raw,
	}, nil
}

func fromDoc(doc eventDoc) (*models.Event, error) {
	data, err := bson.MarshalExtJSON(doc.Doc, false, false)
	if err != nil {
		return nil, fmt.Errorf("convert event document: %w", err)
	}
	var e models.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode event document: %w", err)
	}
	e.Revision = doc.Revision
	return &e, nil
}
