package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"creditrisk-api/internal/models"
	"creditrisk-api/internal/repositories"
)

// MongoPortfolioRepository implements PortfolioRepository using MongoDB
type MongoPortfolioRepository struct {
	collection *mongo.Collection
}

// NewPortfolioRepository creates a new MongoDB portfolio repository
func NewPortfolioRepository(db *mongo.Database) repositories.PortfolioRepository {
	return &MongoPortfolioRepository{
		collection: db.Collection("portfolios"),
	}
}

// Create stores a new portfolio
func (r *MongoPortfolioRepository) Create(ctx context.Context, portfolio *models.Portfolio) error {
	portfolio.CreatedAt = time.Now()
	portfolio.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, portfolio)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("portfolio %s already exists", portfolio.ID)
		}
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	return nil
}

// GetByID retrieves a portfolio by its ID
func (r *MongoPortfolioRepository) GetByID(ctx context.Context, id string) (*models.Portfolio, error) {
	var portfolio models.Portfolio
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&portfolio)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("portfolio %s not found", id)
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return &portfolio, nil
}

// Update replaces an existing portfolio
func (r *MongoPortfolioRepository) Update(ctx context.Context, portfolio *models.Portfolio) error {
	portfolio.UpdatedAt = time.Now()

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": portfolio.ID}, portfolio)
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("portfolio %s not found", portfolio.ID)
	}
	return nil
}

// Delete removes a portfolio by ID
func (r *MongoPortfolioRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("portfolio %s not found", id)
	}
	return nil
}

// List retrieves portfolios with pagination
func (r *MongoPortfolioRepository) List(ctx context.Context, limit, offset int) ([]*models.Portfolio, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer cursor.Close(ctx)

	var portfolios []*models.Portfolio
	if err := cursor.All(ctx, &portfolios); err != nil {
		return nil, fmt.Errorf("failed to decode portfolios: %w", err)
	}
	return portfolios, nil
}
