package audit

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const DefaultCollection = "audit_events"

// MongoStorage keeps events in one collection, one document per event.
type MongoStorage struct {
	coll *mongo.Collection
}

func NewMongoStorage(db *mongo.Database, collection string) *MongoStorage {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MongoStorage{coll: db.Collection(collection)}
}

// EnsureIndexes creates the tenant/time and action indexes.
func (s *MongoStorage) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "action", Value: 1}}},
		{Keys: bson.D{{Key: "resource", Value: 1}, {Key: "resource_id", Value: 1}}},
	})
	return err
}

func (s *MongoStorage) Store(ctx context.Context, event Event) error {
	if _, err := s.coll.InsertOne(ctx, event); err != nil {
		return errors.Join(ErrStorageNotAvailable, err)
	}
	return nil
}

func (s *MongoStorage) StoreBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	if _, err := s.coll.InsertMany(ctx, events); err != nil {
		return errors.Join(ErrStorageNotAvailable, err)
	}
	return nil
}

func (s *MongoStorage) Query(ctx context.Context, c Criteria) ([]Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if c.Limit > 0 {
		opts.SetLimit(int64(c.Limit))
	}
	if c.Offset > 0 {
		opts.SetSkip(int64(c.Offset))
	}

	cur, err := s.coll.Find(ctx, filter(c), opts)
	if err != nil {
		return nil, errors.Join(ErrStorageNotAvailable, err)
	}
	var out []Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Join(ErrStorageNotAvailable, err)
	}
	return out, nil
}

func (s *MongoStorage) Count(ctx context.Context, c Criteria) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, filter(c))
	if err != nil {
		return 0, errors.Join(ErrStorageNotAvailable, err)
	}
	return n, nil
}

func filter(c Criteria) bson.D {
	f := bson.D{}
	add := func(key, value string) {
		if value != "" {
			f = append(f, bson.E{Key: key, Value: value})
		}
	}
	add("tenant_id", c.TenantID)
	add("user_id", c.UserID)
	add("action", c.Action)
	add("resource", c.Resource)
	add("resource_id", c.ResourceID)
	add("result", string(c.Result))

	if !c.StartTime.IsZero() || !c.EndTime.IsZero() {
		r := bson.D{}
		if !c.StartTime.IsZero() {
			r = append(r, bson.E{Key: "$gte", Value: c.StartTime})
		}
		if !c.EndTime.IsZero() {
			r = append(r, bson.E{Key: "$lt", Value: c.EndTime})
		}
		f = append(f, bson.E{Key: "created_at", Value: r})
	}
	return f
}
