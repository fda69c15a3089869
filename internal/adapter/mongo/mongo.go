// Package mongo implements the domain repositories on MongoDB.
package mongo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultDatabase = "tensiometer"

// DB holds the collections backing the repositories.
type DB struct {
	client       *mongo.Client
	measurements *mongo.Collection
	users        *mongo.Collection
	sessions     *mongo.Collection
	counters     *mongo.Collection
}

// Open connects to MongoDB, pings, and ensures indexes. The database name is
// taken from the URI path.
func Open(ctx context.Context, uri string) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(databaseName(uri))
	d := &DB{
		client:       client,
		measurements: db.Collection("measurements"),
		users:        db.Collection("users"),
		sessions:     db.Collection("sessions"),
		counters:     db.Collection("counters"),
	}
	if err := d.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return d, nil
}

// Close disconnects the client.
func (d *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

func (d *DB) ensureIndexes(ctx context.Context) error {
	if _, err := d.measurements.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "measurementDate", Value: -1}},
	}); err != nil {
		return fmt.Errorf("index measurements: %w", err)
	}
	if _, err := d.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("index users: %w", err)
	}
	if _, err := d.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}); err != nil {
		return fmt.Errorf("index sessions: %w", err)
	}
	return nil
}

func databaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultDatabase
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return defaultDatabase
	}
	return name
}
