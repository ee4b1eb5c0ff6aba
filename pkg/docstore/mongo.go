package docstore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.trai.ch/zerr"
)

// MongoStore keeps each collection in a MongoDB collection of the same name.
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database
}

var _ Store = (*MongoStore)(nil)

func OpenMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, zerr.Wrap(err, "failed to connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, zerr.Wrap(err, "failed to ping mongo")
	}
	return &MongoStore{client: client, database: client.Database(database)}, nil
}

func mongoFilter(filter Filter) bson.M {
	out := bson.M{}
	for key, want := range filter {
		switch want := want.(type) {
		case In:
			out[key] = bson.M{"$in": []any(want)}
		default:
			out[key] = want
		}
	}
	return out
}

func (s *MongoStore) Find(ctx context.Context, collection string, filter Filter, page Page) ([]Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created", Value: 1}, {Key: IDKey, Value: 1}})
	if page.Skip > 0 {
		opts.SetSkip(int64(page.Skip))
	}
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}
	cursor, err := s.database.Collection(collection).Find(ctx, mongoFilter(filter), opts)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to query"), "collection", collection)
	}
	var found []bson.M
	if err := cursor.All(ctx, &found); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read cursor"), "collection", collection)
	}
	out := make([]Document, 0, len(found))
	for _, m := range found {
		out = append(out, Document(m))
	}
	return out, nil
}

func (s *MongoStore) FindByID(ctx context.Context, collection, id string) (Document, error) {
	var found bson.M
	err := s.database.Collection(collection).FindOne(ctx, bson.M{IDKey: id}).Decode(&found)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to query"), "collection", collection)
	}
	return Document(found), nil
}

func (s *MongoStore) Insert(ctx context.Context, collection string, doc Document) error {
	if _, err := s.database.Collection(collection).InsertOne(ctx, bson.M(doc)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrExists
		}
		return zerr.With(zerr.Wrap(err, "failed to insert"), "collection", collection)
	}
	return nil
}

func (s *MongoStore) Replace(ctx context.Context, collection string, doc Document) error {
	res, err := s.database.Collection(collection).ReplaceOne(ctx, bson.M{IDKey: doc.ID()}, bson.M(doc))
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to replace"), "collection", collection)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.database.Collection(collection).DeleteOne(ctx, bson.M{IDKey: id})
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to delete"), "collection", collection)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
