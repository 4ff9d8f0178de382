// Package db stores the activation journal in MongoDB.
package db

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.vocdoni.io/dvote/log"
)

// MongoStorage uses an external MongoDB service to journal the mandate
// activation runs.
type MongoStorage struct {
	client      *mongo.Client
	database    string
	activations *mongo.Collection
	retention   time.Duration
}

// New connects to the MongoDB service at url and prepares the collections
// and indexes of database. Journal entries are kept for DefaultRetention.
func New(url, database string) (*MongoStorage, error) {
	if url == "" {
		return nil, fmt.Errorf("mongo URL is not defined")
	}
	if database == "" {
		return nil, fmt.Errorf("mongo database is not defined")
	}
	log.Infow("connecting to mongodb", "database", database)
	opts := options.Client()
	opts.ApplyURI(url)
	opts.SetMaxConnecting(50)
	timeout := time.Second * 10
	opts.ConnectTimeout = &timeout

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := client.Ping(ctx2, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}

	ms := &MongoStorage{
		client:      client,
		database:    database,
		activations: client.Database(database).Collection(activationsCollection),
		retention:   DefaultRetention,
	}
	// PAYMENTS_MONGO_RESET_DB drops the journal on startup
	if reset := os.Getenv("PAYMENTS_MONGO_RESET_DB"); reset != "" {
		if err := ms.Reset(); err != nil {
			return nil, err
		}
	} else if err := ms.createIndexes(); err != nil {
		return nil, err
	}
	return ms, nil
}

// Close disconnects from MongoDB.
func (ms *MongoStorage) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ms.client.Disconnect(ctx); err != nil {
		log.Warn(err)
	}
}

// Reset drops the journal and recreates its indexes.
func (ms *MongoStorage) Reset() error {
	log.Infof("resetting database")
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if err := ms.activations.Drop(ctx); err != nil {
		return err
	}
	return ms.createIndexes()
}
