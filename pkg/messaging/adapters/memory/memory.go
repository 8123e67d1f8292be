// Package memory provides an in-process messaging.Broker backed by
// per-topic append-only logs. It is used for tests and for the single-node
// local deployment mode where no Kafka cluster is available.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/openfactory/assetstream/pkg/errors"
	"github.com/openfactory/assetstream/pkg/messaging"
)

// Config configures the in-memory broker.
type Config struct {
	// BufferSize bounds how many messages a topic log retains before the
	// oldest are dropped. Zero means unbounded.
	BufferSize int
}

// Broker is a process-local messaging.Broker. Every topic is a single
// append-only log; every consumer group tracks its own read position so
// multiple groups can fan out the same topic independently, the same way
// Kafka consumer groups do.
type Broker struct {
	cfg Config

	mu        sync.Mutex
	topics    map[string]*topicLog
	consumers map[string]*groupState
	closed    bool
}

// New creates a ready-to-use in-memory broker.
func New(cfg Config) *Broker {
	return &Broker{
		cfg:       cfg,
		topics:    make(map[string]*topicLog),
		consumers: make(map[string]*groupState),
	}
}

func (b *Broker) topicLog(topic string) *topicLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.topics[topic]
	if !ok {
		l = newTopicLog(b.cfg.BufferSize)
		b.topics[topic] = l
	}
	return l
}

// Producer creates a producer bound to topic.
func (b *Broker) Producer(topic string) (messaging.Producer, error) {
	if b.isClosed() {
		return nil, messaging.ErrClosed(nil)
	}
	return &producer{topic: topic, log: b.topicLog(topic)}, nil
}

// Consumer returns a consumer for topic under group. Repeated calls with
// the same (topic, group) share one read cursor, mirroring how members of
// a real Kafka consumer group share partition offsets.
func (b *Broker) Consumer(topic string, group string) (messaging.Consumer, error) {
	if b.isClosed() {
		return nil, messaging.ErrClosed(nil)
	}
	log := b.topicLog(topic)

	b.mu.Lock()
	key := topic + "\x00" + group
	gs, ok := b.consumers[key]
	if !ok {
		gs = &groupState{nextOffset: log.length()}
		b.consumers[key] = gs
	}
	b.mu.Unlock()

	return &consumer{topic: topic, group: group, log: log, state: gs}, nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Broker) Healthy(ctx context.Context) bool {
	return !b.isClosed()
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// topicLog is an append-only in-memory message log with a broadcast
// channel that's closed and replaced on every append, letting waiters
// unblock without polling.
type topicLog struct {
	mu       sync.Mutex
	messages []*messaging.Message
	notify   chan struct{}
	maxLen   int
	dropped  int64
}

func newTopicLog(maxLen int) *topicLog {
	return &topicLog{notify: make(chan struct{}), maxLen: maxLen}
}

func (l *topicLog) append(msg *messaging.Message) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg.Metadata.Offset = l.dropped + int64(len(l.messages))
	l.messages = append(l.messages, msg)
	if l.maxLen > 0 && len(l.messages) > l.maxLen {
		drop := len(l.messages) - l.maxLen
		l.messages = l.messages[drop:]
		l.dropped += int64(drop)
	}
	close(l.notify)
	l.notify = make(chan struct{})
	return msg.Metadata.Offset
}

func (l *topicLog) length() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped + int64(len(l.messages))
}

// at returns the message at offset plus the current notify channel to wait
// on if it isn't available yet.
func (l *topicLog) at(offset int64) (*messaging.Message, chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := offset - l.dropped
	if idx >= 0 && idx < int64(len(l.messages)) {
		return l.messages[idx], nil
	}
	return nil, l.notify
}

// groupState is the shared read cursor for one (topic, group) pair.
type groupState struct {
	mu         sync.Mutex
	nextOffset int64
}

func (g *groupState) peek() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextOffset
}

func (g *groupState) advancePast(offset int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if offset+1 > g.nextOffset {
		g.nextOffset = offset + 1
	}
}

type producer struct {
	topic string
	log   *topicLog
}

func (p *producer) Publish(ctx context.Context, msg *messaging.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	msg.Topic = p.topic
	p.log.append(msg)
	return nil
}

func (p *producer) PublishBatch(ctx context.Context, msgs []*messaging.Message) error {
	for _, msg := range msgs {
		if err := p.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *producer) Close() error { return nil }

// consumer implements messaging.Consumer and messaging.OffsetConsumer over
// a topicLog, sharing its read cursor with every other consumer handle on
// the same (topic, group).
type consumer struct {
	topic string
	group string
	log   *topicLog
	state *groupState
}

func (c *consumer) AwaitAssignment(ctx context.Context, deadline time.Duration) error {
	// Assignment is immediate in-process: there is no broker round trip.
	return nil
}

func (c *consumer) PollOnce(ctx context.Context, timeout time.Duration) (*messaging.Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		offset := c.state.peek()
		msg, wait := c.log.at(offset)
		if msg != nil {
			return msg, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-wait:
			timer.Stop()
			continue
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (c *consumer) CommitMessage(ctx context.Context, msg *messaging.Message) error {
	c.state.advancePast(msg.Metadata.Offset)
	return nil
}

func (c *consumer) Consume(ctx context.Context, handler messaging.MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		msg, err := c.PollOnce(ctx, 500*time.Millisecond)
		if err != nil {
			return err
		}
		if msg == nil {
			continue
		}
		if err := handler(ctx, msg); err != nil {
			continue
		}
		if err := c.CommitMessage(ctx, msg); err != nil {
			return errors.Wrap(err, "failed to commit in-memory offset")
		}
	}
}

func (c *consumer) Close() error {
	return nil
}
