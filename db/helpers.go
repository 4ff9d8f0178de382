package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// createIndexes creates the lookup indexes of the journal and the TTL index
// that expires old entries.
func (ms *MongoStorage) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "paymentId", Value: 1}}},
		{Keys: bson.D{{Key: "terminal", Value: 1}, {Key: "updatedAt", Value: 1}}},
		{
			Keys:    bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(ms.retention.Seconds())),
		},
	}
	if _, err := ms.activations.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create activation indexes: %w", err)
	}
	return nil
}
