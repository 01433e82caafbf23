// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects published by the task and catalog services.
const (
	SubjectTaskCreated      = "tasks.created"
	SubjectTaskUpdated      = "tasks.updated"
	SubjectTaskMaterialized = "tasks.materialized"
	SubjectTaskDeleted      = "tasks.deleted"
	SubjectCatalogRefreshed = "catalog.refreshed"
)

// Discard is a Queue used when no broker is configured. Publishes are
// dropped and subscriptions never fire.
type Discard struct{}

func (Discard) Publish(context.Context, string, []byte) error { return nil }

func (Discard) Subscribe(context.Context, string, Handler) (func(), error) {
	return func() {}, nil
}

func (Discard) Drain() error { return nil }

func (Discard) Close() error { return nil }

// IsConnected always reports false.
func (Discard) IsConnected() bool { return false }
