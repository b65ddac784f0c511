package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"faultline-go/internal/constants"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBBackend stores each key as a {key, value, updated_at} document.
type MongoDBBackend struct {
	uri        string
	dbName     string
	collName   string
	client     *mongo.Client
	collection *mongo.Collection
}

type kvDocument struct {
	Key       string    `bson:"key"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoDBBackend creates a MongoDB storage backend
func NewMongoDBBackend(uri, dbName, collection string) (*MongoDBBackend, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongodb uri is required")
	}
	if dbName == "" {
		dbName = "faultline"
	}
	if collection == "" {
		collection = "kv"
	}
	return &MongoDBBackend{uri: uri, dbName: dbName, collName: collection}, nil
}

func withStorageTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, constants.StorageTimeout)
}

// Initialize connects to MongoDB and ensures the key index.
func (m *MongoDBBackend) Initialize(ctx context.Context) error {
	ctx, cancel := withStorageTimeout(ctx)
	defer cancel()
	clientOptions := options.Client().ApplyURI(m.uri)
	clientOptions.SetMaxPoolSize(10)
	clientOptions.SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	m.client = client
	m.collection = client.Database(m.dbName).Collection(m.collName)
	if _, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create key index: %w", err)
	}
	return nil
}

// Close closes MongoDB connection
func (m *MongoDBBackend) Close() error {
	if m.client != nil {
		return m.client.Disconnect(context.Background())
	}
	return nil
}

// Health pings the primary.
func (m *MongoDBBackend) Health(ctx context.Context) error {
	if m.client == nil {
		return fmt.Errorf("mongo client not initialized")
	}
	ctx, cancel := withStorageTimeout(ctx)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *MongoDBBackend) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := withStorageTimeout(ctx)
	defer cancel()
	var doc kvDocument
	err := m.collection.FindOne(ctx, bson.M{"key": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &ErrNotFound{Key: key}
		}
		return nil, err
	}
	return doc.Value, nil
}

func (m *MongoDBBackend) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := withStorageTimeout(ctx)
	defer cancel()
	doc := kvDocument{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"key": key}, doc, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoDBBackend) Delete(ctx context.Context, key string) error {
	ctx, cancel := withStorageTimeout(ctx)
	defer cancel()
	res, err := m.collection.DeleteOne(ctx, bson.M{"key": key})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return &ErrNotFound{Key: key}
	}
	return nil
}

func (m *MongoDBBackend) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := withStorageTimeout(ctx)
	defer cancel()
	filter := bson.M{}
	if prefix != "" {
		filter["key"] = bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}
	}
	cur, err := m.collection.Find(ctx, filter, options.Find().SetProjection(bson.M{"key": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var keys []string
	for cur.Next(ctx) {
		var doc kvDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		keys = append(keys, doc.Key)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
