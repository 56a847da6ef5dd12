package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// CollectionState holds one document per state key.
	CollectionState = "poster_state"

	// DefaultMongoStateID is the document id used when no key is configured.
	DefaultMongoStateID = "default"
)

type mongoState struct {
	ID             string           `bson:"_id"`
	RecentlyPosted RecentSelections `bson:"recently_posted"`
	UpdatedAt      time.Time        `bson:"updated_at"`
}

// MongoStore keeps the state as a single document. ReplaceOne is atomic per
// document.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	id         string
}

// NewMongoStore connects to uri and verifies connectivity.
func NewMongoStore(ctx context.Context, uri, database, id string) (*MongoStore, error) {
	slog.Info("Connecting to MongoDB", "database", database)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if id == "" {
		id = DefaultMongoStateID
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(CollectionState),
		id:         id,
	}, nil
}

func (s *MongoStore) Load(ctx context.Context) (RecentSelections, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc mongoState
	err := s.collection.FindOne(ctxTimeout, bson.M{"_id": s.id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return RecentSelections{}, nil
		}
		var srvErr mongo.ServerError
		if errors.As(err, &srvErr) || mongo.IsNetworkError(err) || mongo.IsTimeout(err) || ctxTimeout.Err() != nil {
			return nil, fmt.Errorf("failed to load state: %w", err)
		}
		// Anything else came from decoding the stored document.
		return nil, fmt.Errorf("%w: %v", ErrStateCorruption, err)
	}

	if err := validate(doc.RecentlyPosted); err != nil {
		return nil, err
	}
	if doc.RecentlyPosted == nil {
		return RecentSelections{}, nil
	}
	return doc.RecentlyPosted, nil
}

func (s *MongoStore) Save(ctx context.Context, records RecentSelections) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if records == nil {
		records = RecentSelections{}
	}
	doc := mongoState{
		ID:             s.id,
		RecentlyPosted: records,
		UpdatedAt:      time.Now().UTC(),
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctxTimeout, bson.M{"_id": s.id}, doc, opts); err != nil {
		return fmt.Errorf("%w: failed to save state: %v", ErrPersistence, err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	return nil
}
