package pubsub_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/catalog-scraper/internal/notify"
	forwarder "github.com/JakeFAU/catalog-scraper/internal/notify/pubsub"
)

func newTestClient(t *testing.T) *pubsub.Client {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestForwarderPublishesBroadcasts(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	topic, err := client.CreateTopic(ctx, "catalog-events")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "catalog-events-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	fwd, err := forwarder.NewWithClient(ctx, client, "catalog-events", nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, fwd.Close()) }()

	hub := notify.NewHub(notify.Config{})
	hub.Subscribe(fwd)
	text := notify.CountEvent(notify.KindScrapeCompleted, 3).Encode()
	require.Equal(t, 1, hub.Broadcast(ctx, text))

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	got := make(chan string, 1)
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case got <- string(msg.Data):
			default:
			}
			cancel()
		})
	}()

	select {
	case data := <-got:
		require.JSONEq(t, text, data)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for forwarded event")
	}
}

func TestForwarderMissingTopic(t *testing.T) {
	client := newTestClient(t)

	_, err := forwarder.NewWithClient(context.Background(), client, "absent", nil)
	require.Error(t, err)
}
