package mongostore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/gemini-chat/internal/chat"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func mockStore(mt *mtest.T) *Store {
	return &Store{client: mt.Client, coll: mt.Coll}
}

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func updateCount(mt *mtest.T) int {
	n := 0
	for _, evt := range mt.GetAllStartedEvents() {
		if evt.CommandName == "update" {
			n++
		}
	}
	return n
}

var pair = []chat.Turn{
	{Role: chat.RoleUser, Content: "Hello"},
	{Role: chat.RoleAssistant, Content: "Hi there"},
}

func TestAppendTurns(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("push each with upsert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		require.NoError(mt, mockStore(mt).AppendTurns(ctx, "a@x.com", pair))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)

		stmt := evt.Command.Lookup("updates").Array().Index(0).Value().Document()
		assert.True(mt, stmt.Lookup("upsert").Boolean())
		assert.Equal(mt, "a@x.com", stmt.Lookup("q", "userEmail").StringValue())

		each, err := stmt.Lookup("u", "$push", "messages", "$each").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, each, 2)
		assert.Equal(mt, "user", each[0].Document().Lookup("role").StringValue())
		assert.Equal(mt, "Hi there", each[1].Document().Lookup("content").StringValue())

		_, hasCreated := stmt.Lookup("u", "$setOnInsert").Document().Lookup("createdAt").DateTimeOK()
		assert.True(mt, hasCreated)
	})

	mt.Run("retries once after duplicate key", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key"}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)

		require.NoError(mt, mockStore(mt).AppendTurns(ctx, "a@x.com", pair))
		assert.Equal(mt, 2, updateCount(mt))
	})

	mt.Run("second duplicate key is returned", func(mt *mtest.T) {
		dup := mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key"})
		mt.AddMockResponses(dup, dup)

		err := mockStore(mt).AppendTurns(ctx, "a@x.com", pair)
		assert.True(mt, mongo.IsDuplicateKeyError(err))
		assert.Equal(mt, 2, updateCount(mt))
	})

	mt.Run("guards send nothing", func(mt *mtest.T) {
		s := mockStore(mt)
		assert.ErrorIs(mt, s.AppendTurns(ctx, "", pair), chat.ErrNoIdentity)
		assert.NoError(mt, s.AppendTurns(ctx, "a@x.com", nil))
		assert.Zero(mt, updateCount(mt))
	})
}

func TestLoadHistory(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("missing document is empty", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		turns, err := mockStore(mt).LoadHistory(ctx, "nobody@x.com")
		require.NoError(mt, err)
		assert.NotNil(mt, turns)
		assert.Empty(mt, turns)
	})

	mt.Run("stored turns in order", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{
			{Key: "userEmail", Value: "a@x.com"},
			{Key: "messages", Value: bson.A{
				bson.D{{Key: "role", Value: "user"}, {Key: "content", Value: "Hello"}},
				bson.D{{Key: "role", Value: "assistant"}, {Key: "content", Value: "Hi there"}},
			}},
		}))

		doc, err := mockStore(mt).GetDocument(ctx, "a@x.com")
		require.NoError(mt, err)
		assert.Equal(mt, "a@x.com", doc.UserEmail)
		assert.Equal(mt, pair, doc.Messages)
	})
}
