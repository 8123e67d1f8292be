// Package dispatcher implements the Stream Dispatcher: a long-lived bus
// consumer that fans a group-scoped topic out to the in-memory
// SubscriberQueues held in a registry.Registry, committing offsets only
// after at least one subscriber has received the message.
//
// Grounded on the poll/match/enqueue/commit loop in
// original_source/app/core/kafka_dispatcher.py, restated over
// messaging.OffsetConsumer instead of a background thread bridged into an
// asyncio loop via run_coroutine_threadsafe.
package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openfactory/assetstream/pkg/concurrency"
	"github.com/openfactory/assetstream/pkg/errors"
	"github.com/openfactory/assetstream/pkg/logger"
	"github.com/openfactory/assetstream/pkg/messaging"
	"github.com/openfactory/assetstream/pkg/registry"
)

// State is a Dispatcher's position in its lifecycle.
type State int32

const (
	Init State = iota
	AwaitingAssignment
	Running
	Stopping
	Closed
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case AwaitingAssignment:
		return "awaiting_assignment"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Projector receives every message the dispatcher observes, independent of
// whether any SSE subscriber matched it, so a group's point-query
// projection stays current even between subscriber connections.
type Projector interface {
	Project(ctx context.Context, routingKey string, payload []byte) error
}

// Config controls a Dispatcher's matching policy and timing. The zero
// value is invalid: Topic and Group must be set; the timeouts fall back
// to their defaults when zero.
type Config struct {
	Topic string
	Group string

	// MatchMode is immutable for the lifetime of the dispatcher.
	MatchMode registry.MatchMode

	// PollTimeout bounds each wait for the next bus message. Default 1s.
	PollTimeout time.Duration

	// EnqueueTimeout bounds how long the dispatcher blocks on a single
	// full subscriber queue before recording a drop for it. Default 2s.
	EnqueueTimeout time.Duration

	// AssignmentDeadline bounds how long Run waits for partition
	// assignment before failing fatally at startup. Default 100s.
	AssignmentDeadline time.Duration

	// Projector is optional. When set, every polled message is also
	// handed to it before the fanout/commit decision is made.
	Projector Projector
}

func (c Config) withDefaults() Config {
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 2 * time.Second
	}
	if c.AssignmentDeadline <= 0 {
		c.AssignmentDeadline = 100 * time.Second
	}
	return c
}

// Dispatcher drains cfg.Topic into reg, one message at a time, in exactly
// the order it observed them on the bus.
type Dispatcher struct {
	cfg       Config
	consumer  messaging.OffsetConsumer
	reg       *registry.Registry
	projector Projector

	state  atomic.Int32
	stopCh chan struct{}
	doneCh chan struct{}
	stopOnce sync.Once

	drops atomic.Int64
}

// New creates a Dispatcher bound to a fresh consumer for cfg.Topic/cfg.Group
// on broker. The broker's Consumer must also implement
// messaging.OffsetConsumer; brokers that can't support caller-driven
// offset control are rejected with errors.Unavailable.
func New(broker messaging.Broker, reg *registry.Registry, cfg Config) (*Dispatcher, error) {
	cfg = cfg.withDefaults()
	if cfg.Topic == "" || cfg.Group == "" {
		return nil, errors.InvalidArgument("dispatcher requires both topic and group", nil)
	}

	c, err := broker.Consumer(cfg.Topic, cfg.Group)
	if err != nil {
		return nil, errors.Unavailable("failed to create bus consumer", err)
	}
	oc, ok := c.(messaging.OffsetConsumer)
	if !ok {
		_ = c.Close()
		return nil, errors.Unavailable("broker consumer does not support caller-driven offset control", nil)
	}

	return &Dispatcher{
		cfg:       cfg,
		consumer:  oc,
		reg:       reg,
		projector: cfg.Projector,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// State returns the dispatcher's current lifecycle state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Drops returns the running count of per-subscriber back-pressure drops.
func (d *Dispatcher) Drops() int64 {
	return d.drops.Load()
}

func (d *Dispatcher) setState(s State) {
	d.state.Store(int32(s))
}

// Run blocks until ctx is canceled, Stop is called, or a fatal error
// occurs waiting for partition assignment. It implements the
// Init -> AwaitingAssignment -> Running -> Stopping -> Closed state
// machine (spec §4.2).
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.doneCh)
	defer d.setState(Closed)

	d.setState(AwaitingAssignment)
	if err := d.consumer.AwaitAssignment(ctx, d.cfg.AssignmentDeadline); err != nil {
		logger.L().ErrorContext(ctx, "dispatcher failed to obtain partition assignment",
			"topic", d.cfg.Topic, "group", d.cfg.Group, "error", err)
		return errors.Unavailable("dispatcher failed to obtain partition assignment", err)
	}

	d.setState(Running)
	logger.L().InfoContext(ctx, "dispatcher running", "topic", d.cfg.Topic, "group", d.cfg.Group)

	for {
		select {
		case <-d.stopCh:
			d.setState(Stopping)
			return d.shutdown(ctx)
		case <-ctx.Done():
			d.setState(Stopping)
			return d.shutdown(ctx)
		default:
		}

		msg, err := d.consumer.PollOnce(ctx, d.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				d.setState(Stopping)
				return d.shutdown(ctx)
			}
			// A single poll fault never kills the loop (spec §7).
			logger.L().ErrorContext(ctx, "dispatcher poll error", "error", err)
			continue
		}
		if msg == nil {
			continue
		}

		d.deliver(ctx, msg)
	}
}

// deliver matches one message against the registry and enqueues it to
// every matching subscriber, committing the offset only if at least one
// enqueue succeeded (spec §4.2 Back-pressure / Delivery loop).
func (d *Dispatcher) deliver(ctx context.Context, msg *messaging.Message) {
	routingKey := string(msg.Key)

	if d.projector != nil {
		if err := d.projector.Project(ctx, routingKey, msg.Payload); err != nil {
			logger.L().WarnContext(ctx, "failed to project message",
				"routing_key", routingKey, "topic", d.cfg.Topic, "error", err)
		}
	}

	snapshot := d.reg.Fanout(routingKey, d.cfg.MatchMode)
	if len(snapshot) == 0 {
		// Not committed: a later subscriber may still catch this message
		// within the bus's retention window.
		return
	}

	delivered := false
	for _, q := range snapshot {
		if q.EnqueueWithTimeout(msg.Payload, d.cfg.EnqueueTimeout) {
			delivered = true
			continue
		}
		d.drops.Add(1)
		logger.L().WarnContext(ctx, "dropped message for slow subscriber",
			"routing_key", routingKey, "topic", d.cfg.Topic)
	}

	if !delivered {
		return
	}
	if err := d.consumer.CommitMessage(ctx, msg); err != nil {
		logger.L().ErrorContext(ctx, "failed to commit offset after delivery",
			"routing_key", routingKey, "topic", d.cfg.Topic, "error", err)
	}
}

func (d *Dispatcher) shutdown(ctx context.Context) error {
	if err := d.consumer.Close(); err != nil {
		logger.L().ErrorContext(ctx, "error closing bus consumer", "error", err)
		return errors.Wrap(err, "failed to close bus consumer")
	}
	return nil
}

// Stop signals the poll loop to exit at its next bounded wait. It is safe
// to call Stop more than once and from any goroutine.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// RunInBackground starts Run on a managed goroutine via concurrency.SafeGo
// and returns immediately; errors are logged, not returned, matching how
// cmd/streamworker supervises the dispatcher alongside its HTTP server.
func (d *Dispatcher) RunInBackground(ctx context.Context) {
	concurrency.SafeGo(ctx, func() {
		if err := d.Run(ctx); err != nil {
			logger.L().ErrorContext(ctx, "dispatcher exited", "error", err)
		}
	})
}

// Wait blocks until Run has returned.
func (d *Dispatcher) Wait() {
	<-d.doneCh
}
