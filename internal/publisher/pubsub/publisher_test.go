package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "deck-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublishDeckEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "decks")
	require.NoError(t, err)

	pub := New(client)
	defer func() { require.NoError(t, pub.Close()) }()

	evt := deck.DeckEvent{DeckID: "d1", BatchID: "b1", Source: "moxfield.com", Format: deck.FormatModern, CardCount: 60}
	id, err := pub.Publish(ctx, "decks", evt)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "moxfield.com", msgs[0].Attributes["source"])
	assert.Equal(t, "modern", msgs[0].Attributes["format"])
	assert.Equal(t, "b1", msgs[0].Attributes["batch_id"])

	var got deck.DeckEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, evt.DeckID, got.DeckID)
	assert.Equal(t, 60, got.CardCount)
}

func TestPublishMissingTopicFails(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	pub := New(client)
	defer func() { require.NoError(t, pub.Close()) }()

	_, err := pub.Publish(context.Background(), "absent", map[string]string{"k": "v"})
	require.ErrorContains(t, err, "publish message")

	_, err = pub.Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "topic is required")
}

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), "decks", "x")
	require.ErrorContains(t, err, "not configured")

	_, err = Open(context.Background(), "")
	require.ErrorContains(t, err, "project_id")
}
