package store

import (
	"context"

	"CaseForAI/backend/go/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GenerationStore defines persistence for AI generation audit records.
type GenerationStore interface {
	Record(ctx context.Context, rec *models.GenerationRecord) error
	ListByCase(ctx context.Context, caseID string, limit int) ([]*models.GenerationRecord, error)
}

// MongoGenerationStore is an implementation of GenerationStore using MongoDB.
type MongoGenerationStore struct {
	collection *mongo.Collection
}

// NewMongoGenerationStore creates a new MongoGenerationStore.
func NewMongoGenerationStore(collection *mongo.Collection) *MongoGenerationStore {
	return &MongoGenerationStore{collection: collection}
}

// Record inserts a new audit record, assigning an ID if it has none.
func (s *MongoGenerationStore) Record(ctx context.Context, rec *models.GenerationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	_, err := s.collection.InsertOne(ctx, rec)
	return err
}

// ListByCase retrieves the latest audit records of a case, newest first.
func (s *MongoGenerationStore) ListByCase(ctx context.Context, caseID string, limit int) ([]*models.GenerationRecord, error) {
	var records []*models.GenerationRecord
	opts := options.Find()
	opts.SetSort(bson.D{{Key: "created_at", Value: -1}})
	opts.SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, bson.M{"case_id": caseID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}
