package databases

// go generate: mockery --name PushTokenDatabase

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/scoutbase/recruiting-api/models"
)

const pushTokenCollectionName = "pushtokens"

// PushTokenDatabase contains the methods to use with the push token database
type PushTokenDatabase interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.PushToken, error)
	Upsert(ctx context.Context, userID, token, platform string) error
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) error
}

type pushTokenDatabase struct {
	db DatabaseHelper
}

// NewPushTokenDatabase initializes a new instance of push token database with the provided db connection
func NewPushTokenDatabase(db DatabaseHelper) PushTokenDatabase {
	return &pushTokenDatabase{
		db: db,
	}
}

func (pt *pushTokenDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.PushToken, error) {
	var tokens []models.PushToken
	curr, err := pt.db.Collection(pushTokenCollectionName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	err = curr.All(ctx, &tokens)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// Upsert registers a device token, keyed by user and token so re-registration
// on app start is idempotent.
func (pt *pushTokenDatabase) Upsert(ctx context.Context, userID, token, platform string) error {
	now := primitive.NewDateTimeFromTime(time.Now())
	upsert := true
	_, err := pt.db.Collection(pushTokenCollectionName).UpdateOne(ctx,
		bson.M{"userId": userID, "token": token},
		bson.M{
			"$set":         bson.M{"platform": platform, "updatedAt": now},
			"$setOnInsert": bson.M{"userId": userID, "token": token, "createdAt": now},
		},
		&options.UpdateOptions{Upsert: &upsert},
	)
	return err
}

func (pt *pushTokenDatabase) DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) error {
	return pt.db.Collection(pushTokenCollectionName).DeleteOne(ctx, filter, opts...)
}
