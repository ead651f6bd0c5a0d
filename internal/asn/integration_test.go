package asn

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestEventPublisherRelaysCompletionOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, ChannelCompleted)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	publisher := NewEventPublisher(client, nil)
	completedAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	require.NoError(t, publisher.HandleASNCompleted(ctx, CompletedEvent{
		ASNID:       7,
		Number:      "ASN-42",
		SupplierID:  101,
		CompletedAt: completedAt,
	}))

	select {
	case msg := <-sub.Channel():
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
		require.Equal(t, float64(7), payload["asn_id"])
		require.Equal(t, "ASN-42", payload["number"])
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestEventPublisherNilClientIsInert(t *testing.T) {
	publisher := NewEventPublisher(nil, nil)
	require.NoError(t, publisher.HandleLineProcessed(context.Background(), LineProcessedEvent{}))
}
