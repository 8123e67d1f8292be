package messaging

import (
	"context"
	"time"
)

// OffsetConsumer is an optional capability a Consumer may implement to
// support a poll/commit loop driven entirely by the caller instead of the
// callback-based Consume(ctx, handler) loop above.
//
// The Stream Dispatcher (see pkg/dispatcher) needs this shape specifically:
// it commits the read offset itself, and only after at least one matching
// subscriber has accepted the message, so a message that no subscriber
// received is left uncommitted.
//
// Brokers whose wire protocol has no notion of a resumable, caller-driven
// offset (e.g. plain pub/sub fan-out) need not implement this interface;
// dispatcher construction fails with errors.Unavailable if it is absent.
type OffsetConsumer interface {
	// AwaitAssignment blocks until at least one partition has been assigned
	// to this consumer, or the deadline elapses.
	AwaitAssignment(ctx context.Context, deadline time.Duration) error

	// PollOnce waits up to timeout for the next message. A nil message with
	// a nil error means the bounded wait elapsed with nothing available.
	PollOnce(ctx context.Context, timeout time.Duration) (*Message, error)

	// CommitMessage commits the offset of msg (and everything before it on
	// the same partition) to the broker.
	CommitMessage(ctx context.Context, msg *Message) error

	// Close releases the consumer and triggers group rebalance.
	Close() error
}
