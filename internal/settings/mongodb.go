package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBStore implements Store using one document per key.
type MongoDBStore struct {
	client     *mongo.Client
	ownsClient bool
	coll       *mongo.Collection
}

type mongoSetting struct {
	Key       string    `bson:"_id"`
	Enabled   bool      `bson:"enabled"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoDBStore connects and pings before returning.
func NewMongoDBStore(ctx context.Context, connectionString, database, collection string) (*MongoDBStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	s, err := NewMongoDBStoreWithClient(client, database, collection)
	if err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, err
	}
	s.ownsClient = true
	return s, nil
}

// NewMongoDBStoreWithClient shares an existing client. The caller keeps
// ownership of client.
func NewMongoDBStoreWithClient(client *mongo.Client, database, collection string) (*MongoDBStore, error) {
	if collection == "" {
		collection = DefaultTableName
	}
	if err := validateIdentifier(collection); err != nil {
		return nil, err
	}
	return &MongoDBStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}, nil
}

func (s *MongoDBStore) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	if err := checkKey(key); err != nil {
		return def, err
	}
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var doc mongoSetting
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("mongodb get %q: %w", key, err)
	}
	return doc.Enabled, nil
}

func (s *MongoDBStore) SetBool(ctx context.Context, key string, v bool) error {
	if err := checkKey(key); err != nil {
		return err
	}
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	update := bson.M{"$set": bson.M{"enabled": v, "updated_at": time.Now().UTC()}}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongodb set %q: %w", key, err)
	}
	return nil
}

func (s *MongoDBStore) AddBool(ctx context.Context, key string, v bool) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	// $setOnInsert leaves existing documents untouched.
	update := bson.M{"$setOnInsert": bson.M{"enabled": v, "updated_at": time.Now().UTC()}}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("mongodb add %q: %w", key, err)
	}
	return res.UpsertedCount == 1, nil
}

func (s *MongoDBStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	if _, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": keys}}); err != nil {
		return fmt.Errorf("mongodb delete: %w", err)
	}
	return nil
}

func (s *MongoDBStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetProjection(bson.M{"_id": 1})
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb keys: %w", err)
	}
	defer cur.Close(ctx)

	var keys []string
	for cur.Next(ctx) {
		var doc mongoSetting
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongodb keys: decode: %w", err)
		}
		keys = append(keys, doc.Key)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongodb keys: %w", err)
	}
	return keys, nil
}

// Close disconnects only when this store opened the client.
func (s *MongoDBStore) Close() error {
	if !s.ownsClient {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
