package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openfactory/assetstream/pkg/messaging"
	"github.com/openfactory/assetstream/pkg/messaging/adapters/memory"
)

func TestMemoryBroker_PublishConsume(t *testing.T) {
	broker := memory.New(memory.Config{BufferSize: 100})
	defer broker.Close()

	producer, err := broker.Producer("asset_stream_site-a_topic")
	require.NoError(t, err)
	defer producer.Close()

	consumer, err := broker.Consumer("asset_stream_site-a_topic", "site-a_consumer_group")
	require.NoError(t, err)
	defer consumer.Close()

	oc, ok := consumer.(messaging.OffsetConsumer)
	require.True(t, ok, "memory consumer must implement OffsetConsumer")

	ctx := context.Background()
	require.NoError(t, oc.AwaitAssignment(ctx, time.Second))

	require.NoError(t, producer.Publish(ctx, &messaging.Message{
		Key:     []byte("a1|temp"),
		Payload: []byte(`{"value":1}`),
	}))

	msg, err := oc.PollOnce(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, []byte("a1|temp"), msg.Key)
	require.NoError(t, oc.CommitMessage(ctx, msg))
}

func TestMemoryBroker_LatestOffsetOnSubscribe(t *testing.T) {
	broker := memory.New(memory.Config{})
	defer broker.Close()

	producer, err := broker.Producer("t")
	require.NoError(t, err)

	require.NoError(t, producer.Publish(context.Background(), &messaging.Message{Payload: []byte("before")}))

	consumer, err := broker.Consumer("t", "g")
	require.NoError(t, err)
	oc := consumer.(messaging.OffsetConsumer)

	require.NoError(t, producer.Publish(context.Background(), &messaging.Message{Payload: []byte("after")}))

	msg, err := oc.PollOnce(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, []byte("after"), msg.Payload)
}

func TestMemoryBroker_PollOnceTimesOutWhenEmpty(t *testing.T) {
	broker := memory.New(memory.Config{})
	defer broker.Close()

	_, err := broker.Producer("t")
	require.NoError(t, err)

	consumer, err := broker.Consumer("t", "g")
	require.NoError(t, err)
	oc := consumer.(messaging.OffsetConsumer)

	start := time.Now()
	msg, err := oc.PollOnce(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, msg)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestMemoryBroker_SharedGroupCursorAdvancesOnlyAfterCommit(t *testing.T) {
	broker := memory.New(memory.Config{})
	defer broker.Close()

	producer, err := broker.Producer("t")
	require.NoError(t, err)

	consumerA, err := broker.Consumer("t", "shared")
	require.NoError(t, err)
	consumerB, err := broker.Consumer("t", "shared")
	require.NoError(t, err)
	ocA := consumerA.(messaging.OffsetConsumer)
	ocB := consumerB.(messaging.OffsetConsumer)

	require.NoError(t, producer.Publish(context.Background(), &messaging.Message{Payload: []byte("m1")}))

	msg, err := ocA.PollOnce(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte("m1"), msg.Payload)

	// B sees the same uncommitted message since the cursor is shared and
	// hasn't advanced yet.
	msg2, err := ocB.PollOnce(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg2)
	require.Equal(t, []byte("m1"), msg2.Payload)

	require.NoError(t, ocA.CommitMessage(context.Background(), msg))

	msg3, err := ocB.PollOnce(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, msg3)
}

func TestMemoryBroker_HealthyAfterClose(t *testing.T) {
	broker := memory.New(memory.Config{})
	require.True(t, broker.Healthy(context.Background()))
	require.NoError(t, broker.Close())
	require.False(t, broker.Healthy(context.Background()))
}
