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
)

func newFakeClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublishMarshalsJSON(t *testing.T) {
	ctx := context.Background()
	client, srv := newFakeClient(t)
	_, err := client.CreateTopic(ctx, "strips")
	require.NoError(t, err)

	pub := NewWithClient(client, "strips")
	id, err := pub.Publish(ctx, "", map[string]string{"date": "2001-02-13"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "2001-02-13", got["date"])
	assert.Equal(t, "application/json", msgs[0].Attributes["content-type"])
}

func TestPublishMissingTopicFails(t *testing.T) {
	ctx := context.Background()
	client, _ := newFakeClient(t)

	pub := NewWithClient(client, "")
	_, err := pub.Publish(ctx, "", "x")
	require.Error(t, err)

	_, err = pub.Publish(ctx, "does-not-exist", "x")
	require.Error(t, err)
	require.NoError(t, pub.Close())
}

func TestPublishRejectsUnmarshalable(t *testing.T) {
	client, _ := newFakeClient(t)
	pub := NewWithClient(client, "strips")
	_, err := pub.Publish(context.Background(), "", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}

func TestNewRequiresProject(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
