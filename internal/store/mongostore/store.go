package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/gemini-chat/internal/chat"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "chats"

var _ chat.HistoryStore = (*Store)(nil)

// Store keeps one document per userEmail and appends with $push.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func Connect(ctx context.Context, uri, database string) (*Store, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	s := &Store{client: client, coll: client.Database(database).Collection(collectionName)}
	if err := s.ensureIndexes(cctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userEmail", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) AppendTurns(ctx context.Context, identity string, turns []chat.Turn) error {
	if identity == "" {
		return chat.ErrNoIdentity
	}
	if len(turns) == 0 {
		return nil
	}

	now := time.Now().UTC()
	update := bson.M{
		"$push":        bson.M{"messages": bson.M{"$each": turns}},
		"$setOnInsert": bson.M{"createdAt": now},
		"$set":         bson.M{"updatedAt": now},
	}
	opts := options.Update().SetUpsert(true)

	_, err := s.coll.UpdateOne(ctx, bson.M{"userEmail": identity}, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		// two first-time upserts raced; the document exists now
		_, err = s.coll.UpdateOne(ctx, bson.M{"userEmail": identity}, update, opts)
	}
	return err
}

func (s *Store) LoadHistory(ctx context.Context, identity string) ([]chat.Turn, error) {
	doc, err := s.GetDocument(ctx, identity)
	if err != nil {
		return nil, err
	}
	return doc.Messages, nil
}

func (s *Store) GetDocument(ctx context.Context, identity string) (*chat.Document, error) {
	var doc chat.Document
	err := s.coll.FindOne(ctx, bson.M{"userEmail": identity}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &chat.Document{UserEmail: identity, Messages: []chat.Turn{}}, nil
	}
	if err != nil {
		return nil, err
	}
	if doc.Messages == nil {
		doc.Messages = []chat.Turn{}
	}
	return &doc, nil
}
