package store

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore adapts a *mongo.Database to the Store contract.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) FindOne(ctx context.Context, collection string, filter M, out any) error {
	err := s.db.Collection(collection).FindOne(ctx, bson.M(filter)).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return errors.Wrapf(err, "findOne %s", collection)
}

func (s *MongoStore) Find(ctx context.Context, collection string, filter M, out any) error {
	cur, err := s.db.Collection(collection).Find(ctx, bson.M(filter))
	if err != nil {
		return errors.Wrapf(err, "find %s", collection)
	}
	return errors.Wrapf(cur.All(ctx, out), "decode %s", collection)
}

func (s *MongoStore) InsertOne(ctx context.Context, collection string, doc any) error {
	_, err := s.db.Collection(collection).InsertOne(ctx, doc)
	return errors.Wrapf(err, "insertOne %s", collection)
}

func (s *MongoStore) UpdateOne(ctx context.Context, collection string, filter M, update M) error {
	_, err := s.db.Collection(collection).UpdateOne(ctx, bson.M(filter), bson.M(update))
	return errors.Wrapf(err, "updateOne %s", collection)
}

func (s *MongoStore) UpdateMany(ctx context.Context, collection string, filter M, update M) error {
	_, err := s.db.Collection(collection).UpdateMany(ctx, bson.M(filter), bson.M(update))
	return errors.Wrapf(err, "updateMany %s", collection)
}

func (s *MongoStore) Upsert(ctx context.Context, collection string, filter M, update M) error {
	opts := options.Update().SetUpsert(true)
	_, err := s.db.Collection(collection).UpdateOne(ctx, bson.M(filter), bson.M(update), opts)
	return errors.Wrapf(err, "upsert %s", collection)
}

func (s *MongoStore) DeleteOne(ctx context.Context, collection string, filter M) error {
	_, err := s.db.Collection(collection).DeleteOne(ctx, bson.M(filter))
	return errors.Wrapf(err, "deleteOne %s", collection)
}

func (s *MongoStore) DeleteMany(ctx context.Context, collection string, filter M) error {
	_, err := s.db.Collection(collection).DeleteMany(ctx, bson.M(filter))
	return errors.Wrapf(err, "deleteMany %s", collection)
}
