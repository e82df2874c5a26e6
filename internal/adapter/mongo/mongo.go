// Package mongo implements the patient store on a MongoDB collection, one
// document per patient with the patient id as _id.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"carelytics/internal/domain"
)

const collectionName = "patients"

// Config holds the MongoDB connection settings.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// Store is a MongoDB backed domain.PatientStore.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ domain.PatientStore = (*Store)(nil)

type document struct {
	ID            string `bson:"_id"`
	domain.Record `bson:",inline"`
}

// Open connects to MongoDB and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &Store{client: client, coll: client.Database(cfg.Database).Collection(collectionName)}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Load returns every document of the collection keyed by id.
func (s *Store) Load(ctx context.Context) (map[string]domain.Record, error) {
	cur, err := s.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, domain.IOError("load patients", err)
	}
	defer cur.Close(ctx)

	out := make(map[string]domain.Record)
	for cur.Next(ctx) {
		var doc document
		if err := cur.Decode(&doc); err != nil {
			return nil, domain.CorruptError("load patients", err)
		}
		out[doc.ID] = doc.Record
	}
	if err := cur.Err(); err != nil {
		return nil, domain.IOError("load patients", err)
	}
	return out, nil
}

// Save upserts every record and removes documents whose id is no longer in
// patients.
func (s *Store) Save(ctx context.Context, patients map[string]domain.Record) error {
	ids := make([]string, 0, len(patients))
	models := make([]mongo.WriteModel, 0, len(patients)+1)
	for id, r := range patients {
		ids = append(ids, id)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: id}}).
			SetReplacement(document{ID: id, Record: r}).
			SetUpsert(true))
	}
	models = append(models, mongo.NewDeleteManyModel().
		SetFilter(bson.D{{Key: "_id", Value: bson.D{{Key: "$nin", Value: ids}}}}))

	if _, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return domain.IOError("save patients", err)
	}
	return nil
}
