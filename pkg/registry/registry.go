package registry

import "sync"

// Registry is a thread-safe mapping from routing key to the set of live
// SubscriberQueues registered under it. It is the only shared mutable
// state between the Stream Dispatcher's bus-poll thread and the SSE
// Endpoint's cooperative HTTP handlers.
//
// Invariants (see spec §3 SubscriptionRegistry):
//   - R1: a queue appears in at most one entry.
//   - R2: removing the last queue for a key also removes the key.
//   - R3: all mutations are serialized by mu; no I/O ever runs under mu.
type Registry struct {
	mu   sync.Mutex
	subs map[string][]*SubscriberQueue
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{subs: make(map[string][]*SubscriberQueue)}
}

// Attach adds queue to the set registered under key, creating the entry
// if it doesn't already exist.
func (r *Registry) Attach(key string, queue *SubscriberQueue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[key] = append(r.subs[key], queue)
}

// Detach removes queue from key's set. When the set becomes empty the key
// itself is removed (R2). Detach is idempotent: detaching a queue that
// isn't present is a no-op.
func (r *Registry) Detach(key string, queue *SubscriberQueue) {
	r.mu.Lock()
	defer r.mu.Unlock()

	queues, ok := r.subs[key]
	if !ok {
		return
	}
	for i, q := range queues {
		if q == queue {
			queues = append(queues[:i], queues[i+1:]...)
			break
		}
	}
	if len(queues) == 0 {
		delete(r.subs, key)
		return
	}
	r.subs[key] = queues
}

// MatchMode selects how Fanout compares a message's routing key against
// registered subscription keys. It is fixed for the lifetime of a
// dispatcher (see pkg/dispatcher).
type MatchMode int

const (
	// MatchExact delivers only to queues registered under exactly the
	// message's routing key. This is the default for worker services.
	MatchExact MatchMode = iota

	// MatchPrefix delivers to every queue whose registered key is a
	// prefix of the message's routing key. Legacy mode, used when
	// per-connection filtering encodes the data-item id into the key
	// (e.g. "{asset_uuid}|{data_item_id}" vs "{asset_uuid}|").
	MatchPrefix
)

// Fanout returns a stable snapshot of the queues that should receive a
// message with the given routing key, under mode. The snapshot is
// independent of any concurrent mutation: the caller may safely enqueue
// to it after Fanout returns without holding any lock.
func (r *Registry) Fanout(routingKey string, mode MatchMode) []*SubscriberQueue {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch mode {
	case MatchExact:
		queues := r.subs[routingKey]
		if len(queues) == 0 {
			return nil
		}
		return append([]*SubscriberQueue(nil), queues...)
	case MatchPrefix:
		var snapshot []*SubscriberQueue
		for key, queues := range r.subs {
			if len(key) <= len(routingKey) && routingKey[:len(key)] == key {
				snapshot = append(snapshot, queues...)
			}
		}
		return snapshot
	default:
		return nil
	}
}

// Keys returns a snapshot of currently-subscribed keys.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.subs))
	for k := range r.subs {
		keys = append(keys, k)
	}
	return keys
}

// Len reports the number of distinct subscription keys currently held.
// Used by tests asserting invariant R2.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
