package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"creditrisk-api/internal/config"
)

// MongoDB represents MongoDB database connection
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoDB creates a new MongoDB connection
func NewMongoDB(cfg config.DatabaseConfig) (*MongoDB, error) {
	// Create client options
	clientOpts := options.Client().ApplyURI(cfg.URI)

	// Set connection pool options
	if cfg.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	}
	if cfg.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(uint64(cfg.MinPoolSize))
	}
	if cfg.MaxIdleTime > 0 {
		clientOpts.SetMaxConnIdleTime(time.Duration(cfg.MaxIdleTime) * time.Second)
	}

	// Set timeouts
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(time.Duration(cfg.ConnectTimeout) * time.Second)
	}
	if cfg.SocketTimeout > 0 {
		clientOpts.SetSocketTimeout(time.Duration(cfg.SocketTimeout) * time.Second)
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Connect to MongoDB
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.Database)

	// Create indexes
	if err := createIndexes(ctx, database); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &MongoDB{
		client:   client,
		database: database,
	}, nil
}

// GetDatabase returns the database instance
func (m *MongoDB) GetDatabase() *mongo.Database {
	return m.database
}

// GetClient returns the client instance
func (m *MongoDB) GetClient() *mongo.Client {
	return m.client
}

// Collection returns a collection
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Disconnect closes the database connection
func (m *MongoDB) Disconnect() error {
	if m.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return m.client.Disconnect(ctx)
}

// Ping checks the database connection
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// createIndexes creates necessary indexes for collections
func createIndexes(ctx context.Context, db *mongo.Database) error {
	// Portfolio collection indexes
	portfolioCollection := db.Collection("portfolios")
	portfolioIndexes := []mongo.IndexModel{
		{
			Keys: map[string]interface{}{"created_at": -1},
		},
		{
			Keys: map[string]interface{}{"name": 1},
		},
	}

	if _, err := portfolioCollection.Indexes().CreateMany(ctx, portfolioIndexes); err != nil {
		return fmt.Errorf("failed to create portfolio indexes: %w", err)
	}

	// Default-rate reference table: one entry per rating
	rateCollection := db.Collection("default_rates")
	rateIndexes := []mongo.IndexModel{
		{
			Keys:    map[string]interface{}{"credit_rating": 1},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := rateCollection.Indexes().CreateMany(ctx, rateIndexes); err != nil {
		return fmt.Errorf("failed to create default rate indexes: %w", err)
	}

	// Rating history: one snapshot per loan per date
	historyCollection := db.Collection("rating_history")
	historyIndexes := []mongo.IndexModel{
		{
			Keys:    map[string]interface{}{"loan_id": 1, "snapshot_date": 1},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: map[string]interface{}{"snapshot_date": -1},
		},
	}

	if _, err := historyCollection.Indexes().CreateMany(ctx, historyIndexes); err != nil {
		return fmt.Errorf("failed to create rating history indexes: %w", err)
	}

	return nil
}

// Transaction executes a function within a MongoDB transaction
func (m *MongoDB) Transaction(ctx context.Context, fn func(ctx mongo.SessionContext) error) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	// Execute transaction
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})

	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// IsHealthy reports whether the database answers a ping
func (m *MongoDB) IsHealthy(ctx context.Context) bool {
	return m.Ping(ctx) == nil
}
