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

// MongoRatingHistoryRepository implements RatingHistoryRepository using MongoDB
type MongoRatingHistoryRepository struct {
	collection *mongo.Collection
}

// NewRatingHistoryRepository creates a new MongoDB rating history repository.
// The collection carries a unique index on (loan_id, snapshot_date).
func NewRatingHistoryRepository(db *mongo.Database) repositories.RatingHistoryRepository {
	return &MongoRatingHistoryRepository{
		collection: db.Collection("rating_history"),
	}
}

// Append stores new snapshots
func (r *MongoRatingHistoryRepository) Append(ctx context.Context, snapshots []models.RatingSnapshot) error {
	if len(snapshots) == 0 {
		return models.ErrEmptyDataset
	}

	docs := make([]interface{}, 0, len(snapshots))
	for i := range snapshots {
		docs = append(docs, snapshots[i])
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("duplicate rating snapshot: %w", err)
		}
		return fmt.Errorf("failed to insert rating snapshots: %w", err)
	}
	return nil
}

// GetAll retrieves the full history ordered by snapshot date
func (r *MongoRatingHistoryRepository) GetAll(ctx context.Context) ([]models.RatingSnapshot, error) {
	return r.find(ctx, bson.M{})
}

// GetByLoanID retrieves one loan's history ordered by snapshot date
func (r *MongoRatingHistoryRepository) GetByLoanID(ctx context.Context, loanID string) ([]models.RatingSnapshot, error) {
	return r.find(ctx, bson.M{"loan_id": loanID})
}

func (r *MongoRatingHistoryRepository) find(ctx context.Context, filter bson.M) ([]models.RatingSnapshot, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "loan_id", Value: 1},
		{Key: "snapshot_date", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get rating history: %w", err)
	}
	defer cursor.Close(ctx)

	var snapshots []models.RatingSnapshot
	if err := cursor.All(ctx, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to decode rating history: %w", err)
	}
	return snapshots, nil
}
