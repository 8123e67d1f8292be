package dispatcher_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openfactory/assetstream/pkg/dispatcher"
	"github.com/openfactory/assetstream/pkg/messaging"
	"github.com/openfactory/assetstream/pkg/messaging/adapters/memory"
	"github.com/openfactory/assetstream/pkg/registry"
)

func newTestDispatcher(t *testing.T, broker messaging.Broker, reg *registry.Registry, mode registry.MatchMode) *dispatcher.Dispatcher {
	t.Helper()
	d, err := dispatcher.New(broker, reg, dispatcher.Config{
		Topic:          "asset_stream_wc1_topic",
		Group:          "asset_stream_wc1_consumer_group",
		MatchMode:      mode,
		PollTimeout:    20 * time.Millisecond,
		EnqueueTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	return d
}

func runDispatcher(t *testing.T, d *dispatcher.Dispatcher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = d.Run(ctx) }()
	return cancel
}

// TestFanoutCorrectness covers spec §8 property 1 and scenario S3: a
// single subscriber on a key receives every message produced to it, in
// order, for both matching modes.
func TestFanoutCorrectness(t *testing.T) {
	for _, mode := range []registry.MatchMode{registry.MatchExact, registry.MatchPrefix} {
		mode := mode
		t.Run(modeName(mode), func(t *testing.T) {
			broker := memory.New(memory.Config{})
			defer broker.Close()
			reg := registry.New()

			key := subscriptionKey(mode, "WTVB01-001", "")
			q := registry.NewSubscriberQueue(8)
			reg.Attach(key, q)

			d := newTestDispatcher(t, broker, reg, mode)
			cancel := runDispatcher(t, d)
			defer cancel()
			waitForState(t, d, dispatcher.Running)

			producer, err := broker.Producer("asset_stream_wc1_topic")
			require.NoError(t, err)

			// In exact mode the bus key is the bare asset uuid; in prefix
			// mode the upstream stream key is the composite
			// "asset_uuid|data_item_id", matched against the asset-level
			// prefix "asset_uuid|" the subscriber registered under.
			routingKey := "WTVB01-001"
			if mode == registry.MatchPrefix {
				routingKey = "WTVB01-001|temp"
			}
			for _, payload := range []string{"P1", "P2", "P3"} {
				require.NoError(t, producer.Publish(context.Background(), &messaging.Message{
					Key:     []byte(routingKey),
					Payload: []byte(payload),
				}))
			}

			for _, want := range []string{"P1", "P2", "P3"} {
				select {
				case got := <-q.C():
					require.Equal(t, want, string(got))
				case <-time.After(2 * time.Second):
					t.Fatalf("timed out waiting for %q", want)
				}
			}
		})
	}
}

// TestIsolation covers spec §8 property 2 and scenario S5: a full queue on
// one subscriber never blocks delivery to another.
func TestIsolation(t *testing.T) {
	broker := memory.New(memory.Config{})
	defer broker.Close()
	reg := registry.New()

	fast := registry.NewSubscriberQueue(16)
	slow := registry.NewSubscriberQueue(1)
	reg.Attach("K", fast)
	reg.Attach("K", slow)

	d, err := dispatcher.New(broker, reg, dispatcher.Config{
		Topic:          "asset_stream_wc1_topic",
		Group:          "asset_stream_wc1_consumer_group",
		MatchMode:      registry.MatchExact,
		PollTimeout:    20 * time.Millisecond,
		EnqueueTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	cancel := runDispatcher(t, d)
	defer cancel()
	waitForState(t, d, dispatcher.Running)

	producer, err := broker.Producer("asset_stream_wc1_topic")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, producer.Publish(context.Background(), &messaging.Message{
			Key:     []byte("K"),
			Payload: []byte{byte(i)},
		}))
	}

	received := 0
	timeout := time.After(3 * time.Second)
	for received < 10 {
		select {
		case <-fast.C():
			received++
		case <-timeout:
			t.Fatalf("fast subscriber only received %d/10 messages", received)
		}
	}

	require.Eventually(t, func() bool {
		return d.Drops() > 0
	}, time.Second, 10*time.Millisecond, "expected at least one drop recorded for the slow subscriber")
}

// TestEmptySnapshotNotCommitted covers the "no subscribers yet" half of
// the offset-commit rule: a message with no matching subscriber must not
// be committed, so a dispatcher restarted on the same group still sees it.
func TestEmptySnapshotNotCommitted(t *testing.T) {
	broker := memory.New(memory.Config{})
	defer broker.Close()

	producer, err := broker.Producer("asset_stream_wc1_topic")
	require.NoError(t, err)
	require.NoError(t, producer.Publish(context.Background(), &messaging.Message{
		Key:     []byte("UNSUBSCRIBED"),
		Payload: []byte("P1"),
	}))

	reg := registry.New()
	d := newTestDispatcher(t, broker, reg, registry.MatchExact)
	cancel := runDispatcher(t, d)
	waitForState(t, d, dispatcher.Running)
	time.Sleep(100 * time.Millisecond)
	cancel()
	d.Wait()

	// A late subscriber attached after the fact, on a fresh dispatcher for
	// the same group, must still observe the uncommitted message.
	q := registry.NewSubscriberQueue(8)
	reg.Attach("UNSUBSCRIBED", q)

	d2 := newTestDispatcher(t, broker, reg, registry.MatchExact)
	cancel2 := runDispatcher(t, d2)
	defer cancel2()

	select {
	case got := <-q.C():
		require.Equal(t, "P1", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("expected redelivery of the never-committed message")
	}
}

type recordingProjector struct {
	mu      sync.Mutex
	seen    []string
	payload map[string][]byte
}

func (p *recordingProjector) Project(_ context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, routingKey)
	if p.payload == nil {
		p.payload = map[string][]byte{}
	}
	p.payload[routingKey] = payload
	return nil
}

func (p *recordingProjector) get(routingKey string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.payload[routingKey]
	return v, ok
}

// TestProjectorObservesEveryMessage covers the supplemental point-query
// projection path: a message must reach the Projector even when no SSE
// subscriber is attached to its routing key.
func TestProjectorObservesEveryMessage(t *testing.T) {
	broker := memory.New(memory.Config{})
	defer broker.Close()

	producer, err := broker.Producer("asset_stream_wc1_topic")
	require.NoError(t, err)
	require.NoError(t, producer.Publish(context.Background(), &messaging.Message{
		Key:     []byte("WTVB01-001|temp"),
		Payload: []byte("42.5"),
	}))

	reg := registry.New()
	proj := &recordingProjector{}
	d, err := dispatcher.New(broker, reg, dispatcher.Config{
		Topic:          "asset_stream_wc1_topic",
		Group:          "asset_stream_wc1_consumer_group",
		MatchMode:      registry.MatchPrefix,
		PollTimeout:    20 * time.Millisecond,
		EnqueueTimeout: 100 * time.Millisecond,
		Projector:      proj,
	})
	require.NoError(t, err)

	cancel := runDispatcher(t, d)
	defer cancel()
	waitForState(t, d, dispatcher.Running)

	require.Eventually(t, func() bool {
		_, ok := proj.get("WTVB01-001|temp")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	payload, _ := proj.get("WTVB01-001|temp")
	require.Equal(t, "42.5", string(payload))
}

func waitForState(t *testing.T, d *dispatcher.Dispatcher, want dispatcher.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return d.State() == want
	}, time.Second, 5*time.Millisecond)
}

func modeName(m registry.MatchMode) string {
	if m == registry.MatchPrefix {
		return "prefix"
	}
	return "exact"
}

func subscriptionKey(mode registry.MatchMode, assetUUID, dataItemID string) string {
	if mode == registry.MatchExact {
		return assetUUID
	}
	if dataItemID != "" {
		return assetUUID + "|" + dataItemID
	}
	return assetUUID + "|"
}
