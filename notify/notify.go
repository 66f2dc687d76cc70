// Package notify publishes bundle lifecycle events to an external
// subscriber, for a companion dashboard or orchestration system that
// wants to react to apply progress without polling the controller.
//
// Grounded on quarry/adapter's event-bus adapter boundary: a small
// interface (Publish, Close) a runtime owns the lifecycle of, plus one
// concrete implementation per transport. Only the Redis publisher from
// that package is implemented here; the boundary is kept so a future
// transport can be added without touching engine call sites.
package notify

import "context"

// EventType enumerates the bundle lifecycle events a Publisher can
// carry, matching the apply.Outcome values plus the begin/rollback
// transitions that have no Outcome of their own.
type EventType string

const (
	EventApplyBegin    EventType = "apply_begin"
	EventApplyComplete EventType = "apply_complete"
	EventRollback      EventType = "rollback"
)

// Event is the payload published for one lifecycle transition.
type Event struct {
	ContractVersion string    `json:"contract_version"`
	EventType       EventType `json:"event_type"`
	BundleID        string    `json:"bundle_id"`
	RunID           string    `json:"run_id"`
	Action          string    `json:"action"`
	Outcome         string    `json:"outcome,omitempty"`
	Timestamp       string    `json:"timestamp"`
}

// ContractVersion is the Event shape's version, bumped whenever a
// field is added or removed.
const ContractVersion = "1"

// Publisher sends lifecycle events to a downstream system. Implementations
// must be safe for single-use across one bundle run.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// NopPublisher discards every event. It is the zero-config default a
// caller that hasn't configured notify.RedisAdapter wires in its place,
// so engine call sites never need a nil check.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error { return nil }
func (NopPublisher) Close() error                          { return nil }

var _ Publisher = NopPublisher{}
