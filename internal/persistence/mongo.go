package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/config"
)

const mongoConnectTimeout = 20 * time.Second

// Mongo wraps the ticket document store client.
type Mongo struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewMongo connects when a URI is provided. Without one the caller falls back
// to the in-memory ticket store.
func NewMongo(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*Mongo, error) {
	if cfg.URI == "" {
		logger.Warn("MONGO_URI not provided; skipping document store connection")
		return &Mongo{}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(mongoConnectTimeout).
		SetConnectTimeout(mongoConnectTimeout)

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	logger.Info("connected to mongodb", zap.String("database", cfg.Database))
	return &Mongo{Client: client, Database: client.Database(cfg.Database)}, nil
}

// Enabled reports whether a live connection exists.
func (m *Mongo) Enabled() bool {
	return m != nil && m.Client != nil
}

// Ping verifies MongoDB connectivity.
func (m *Mongo) Ping(ctx context.Context) error {
	if !m.Enabled() {
		return errors.New("mongodb client not configured")
	}
	return m.Client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) {
	if !m.Enabled() {
		return
	}
	disconnectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = m.Client.Disconnect(disconnectCtx)
}
