package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"creditrisk-api/internal/models"
	"creditrisk-api/internal/repositories"
)

// MongoDefaultRateRepository implements DefaultRateRepository using MongoDB
type MongoDefaultRateRepository struct {
	collection *mongo.Collection
}

// NewDefaultRateRepository creates a new MongoDB default-rate repository
func NewDefaultRateRepository(db *mongo.Database) repositories.DefaultRateRepository {
	return &MongoDefaultRateRepository{
		collection: db.Collection("default_rates"),
	}
}

// ReplaceAll swaps the whole reference table atomically. The table is small
// (one row per rating), so a delete-and-insert inside a write is enough.
func (r *MongoDefaultRateRepository) ReplaceAll(ctx context.Context, entries []models.DefaultRateEntry) error {
	if len(entries) == 0 {
		return models.ErrEmptyDataset
	}

	docs := make([]interface{}, 0, len(entries))
	for i := range entries {
		if err := entries[i].Validate(); err != nil {
			return err
		}
		docs = append(docs, entries[i])
	}

	if _, err := r.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear default rates: %w", err)
	}
	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert default rates: %w", err)
	}
	return nil
}

// GetAll retrieves every entry of the table
func (r *MongoDefaultRateRepository) GetAll(ctx context.Context) ([]models.DefaultRateEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "credit_rating", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get default rates: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []models.DefaultRateEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode default rates: %w", err)
	}
	return entries, nil
}
