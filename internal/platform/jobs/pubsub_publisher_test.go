package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/stitchfield/api/internal/domain"
)

func TestPubSubOrderEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "order-events")
	require.NoError(t, err)

	publisher, err := NewPubSubOrderEventPublisher(topic)
	require.NoError(t, err)

	occurredAt := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	event := domain.OrderEvent{
		ID:         "evt_test",
		Type:       "order.created",
		OrderID:    "order-1",
		OrderCode:  "SF1743584400000",
		UserID:     "user-1",
		Status:     domain.OrderStatusConfirmed,
		OccurredAt: occurredAt,
	}

	_, err = publisher.PublishOrderEvent(ctx, event)
	require.NoError(t, err)

	messages := srv.Messages()
	require.Len(t, messages, 1)

	var payload domain.OrderEvent
	require.NoError(t, json.Unmarshal(messages[0].Data, &payload))
	require.Equal(t, event.ID, payload.ID)
	require.Equal(t, event.OrderCode, payload.OrderCode)
	require.Equal(t, "order.created", messages[0].Attributes["eventType"])
	require.Equal(t, "confirmed", messages[0].Attributes["status"])
}

func TestNewPubSubOrderEventPublisherRejectsNilTopic(t *testing.T) {
	_, err := NewPubSubOrderEventPublisher(nil)
	require.Error(t, err)
}
