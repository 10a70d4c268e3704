// Package mongodb implements the storage ports on MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	HistoryCollection = "summary_history"
	UsersCollection   = "users"
)

// Client owns the driver connection and hands out stores.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri, verifies the connection and ensures indexes exist.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*Client, error) {
	if uri == "" {
		return nil, errors.New("mongodb: URI is empty")
	}
	if database == "" {
		return nil, errors.New("mongodb: database name is empty")
	}
	opts := options.Client().ApplyURI(uri)
	if timeout > 0 {
		opts.SetConnectTimeout(timeout).SetServerSelectionTimeout(timeout)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb: ping failed: %w", err)
	}

	c := &Client{client: client, db: client.Database(database)}
	if err := c.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return c, nil
}

func (c *Client) ensureIndexes(ctx context.Context) error {
	_, err := c.db.Collection(UsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongodb: creating user indexes: %w", err)
	}
	_, err = c.db.Collection(HistoryCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "feedback.rating", Value: 1}, {Key: "feedback.feedback_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongodb: creating history indexes: %w", err)
	}
	return nil
}

// History returns the history store.
func (c *Client) History() *HistoryStore {
	return &HistoryStore{coll: c.db.Collection(HistoryCollection)}
}

// Users returns the user store.
func (c *Client) Users() *UserStore {
	return &UserStore{coll: c.db.Collection(UsersCollection)}
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

// Close disconnects from the server.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
