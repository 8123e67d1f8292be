package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/openfactory/assetstream/pkg/errors"
	"github.com/openfactory/assetstream/pkg/logger"
	"github.com/openfactory/assetstream/pkg/messaging"
)

// groupConsumer bridges sarama's callback-driven ConsumerGroup into the
// caller-driven poll/commit shape messaging.OffsetConsumer expects.
//
// sarama invokes ConsumeClaim on its own goroutine per assigned partition;
// groupConsumer forwards everything it receives onto a single shared
// channel that PollOnce drains, and stashes the live ConsumerGroupSession
// so CommitMessage can mark and commit against it. Ported from the
// poll-loop shape in original_source/app/core/kafka_dispatcher.py, adapted
// to sarama's session/claim model instead of confluent-kafka's flat poll().
type groupConsumer struct {
	cg    sarama.ConsumerGroup
	topic string
	group string

	session   atomic.Pointer[sarama.ConsumerGroupSession]
	messages  chan *sarama.ConsumerMessage
	assigned  chan struct{}
	assignOne sync.Once

	cancel context.CancelFunc
	done   chan struct{}
}

func newGroupConsumer(cg sarama.ConsumerGroup, topic, group string) *groupConsumer {
	c := &groupConsumer{
		cg:       cg,
		topic:    topic,
		group:    group,
		messages: make(chan *sarama.ConsumerMessage),
		assigned: make(chan struct{}),
		done:     make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go c.runLoop(ctx)

	go func() {
		for err := range cg.Errors() {
			logger.L().Error("kafka consumer group error", "group", group, "topic", topic, "error", err)
		}
	}()

	return c
}

func (c *groupConsumer) runLoop(ctx context.Context) {
	defer close(c.done)
	for {
		if err := c.cg.Consume(ctx, []string{c.topic}, c); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.L().Error("kafka consume loop error, retrying", "group", c.group, "topic", c.topic, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Setup is called by sarama once partitions are assigned for a session.
func (c *groupConsumer) Setup(session sarama.ConsumerGroupSession) error {
	c.session.Store(&session)
	c.assignOne.Do(func() { close(c.assigned) })
	return nil
}

// Cleanup is called once a session ends (rebalance or shutdown).
func (c *groupConsumer) Cleanup(session sarama.ConsumerGroupSession) error {
	c.session.Store(nil)
	return nil
}

// ConsumeClaim forwards every message on this partition claim to the
// shared channel until the claim or the consumer is closed.
func (c *groupConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case c.messages <- msg:
			case <-session.Context().Done():
				return nil
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *groupConsumer) AwaitAssignment(ctx context.Context, deadline time.Duration) error {
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	select {
	case <-c.assigned:
		return nil
	case <-timer.C:
		return errors.Unavailable("kafka consumer failed to get partition assignment", nil)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *groupConsumer) PollOnce(ctx context.Context, timeout time.Duration) (*messaging.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-c.messages:
		return fromConsumerMessage(msg), nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *groupConsumer) CommitMessage(ctx context.Context, msg *messaging.Message) error {
	sessPtr := c.session.Load()
	if sessPtr == nil || *sessPtr == nil {
		return errors.Unavailable("no active kafka session to commit against", nil)
	}
	session := *sessPtr
	session.MarkOffset(c.topic, msg.Metadata.Partition, msg.Metadata.Offset+1, "")
	session.Commit()
	return nil
}

// Consume implements the generic messaging.Consumer callback loop on top of
// the same poll primitives, for callers that don't need manual offsets.
func (c *groupConsumer) Consume(ctx context.Context, handler messaging.MessageHandler) error {
	for {
		msg, err := c.PollOnce(ctx, time.Second)
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
			logger.L().ErrorContext(ctx, "failed to commit kafka offset", "error", err)
		}
	}
}

func (c *groupConsumer) Close() error {
	c.cancel()
	<-c.done
	return c.cg.Close()
}

func fromConsumerMessage(msg *sarama.ConsumerMessage) *messaging.Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[string(h.Key)] = string(h.Value)
	}
	return &messaging.Message{
		Topic:     msg.Topic,
		Key:       msg.Key,
		Payload:   msg.Value,
		Headers:   headers,
		Timestamp: msg.Timestamp,
		Metadata: messaging.MessageMetadata{
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Raw:       msg,
		},
	}
}
