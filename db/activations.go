package db

import (
	"context"
	"fmt"
	"time"

	"github.com/deepakselfhelp/deepak-payments/payments"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

// SaveActivation upserts the journal document of an activation. It
// implements payments.Journal.
func (ms *MongoStorage) SaveActivation(ctx context.Context, a *payments.Activation) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("invalid activation")
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := activationDocument(a)
	opts := options.Replace().SetUpsert(true)
	if _, err := ms.activations.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to save activation %s: %w", doc.ID, err)
	}
	return nil
}

// activation returns the journal document with the given id.
func (ms *MongoStorage) activation(id string) (*Activation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	doc := &Activation{}
	if err := ms.activations.FindOne(ctx, bson.M{"_id": id}).Decode(doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// activationsByPayment returns the activations started by a payment, oldest
// first.
func (ms *MongoStorage) activationsByPayment(paymentID string) ([]*Activation, error) {
	return ms.find(bson.M{"paymentId": paymentID}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

// StaleActivations returns the non terminal activations not updated since
// olderThan ago. These are runs interrupted by a restart.
func (ms *MongoStorage) StaleActivations(olderThan time.Duration) ([]*Activation, error) {
	filter := bson.M{
		"terminal":  false,
		"updatedAt": bson.M{"$lt": time.Now().Add(-olderThan)},
	}
	return ms.find(filter, options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}}))
}

func (ms *MongoStorage) find(filter bson.M, opts *options.FindOptions) ([]*Activation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	cursor, err := ms.activations.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warnw("error closing cursor", "error", err)
		}
	}()
	var docs []*Activation
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
