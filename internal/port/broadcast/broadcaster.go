// Package broadcast defines the port for broadcasting real-time events to connected clients.
package broadcast

import "context"

// Event types sent to WebSocket clients.
const (
	EventTaskCreated      = "task.created"
	EventTaskUpdated      = "task.updated"
	EventTaskMaterialized = "task.materialized"
	EventTaskDeleted      = "task.deleted"
	EventCatalogRefreshed = "catalog.refreshed"
)

// Broadcaster sends real-time events to all connected clients.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Discard is a Broadcaster that drops every event.
type Discard struct{}

// BroadcastEvent implements Broadcaster.
func (Discard) BroadcastEvent(context.Context, string, any) {}

// Scoped is implemented by payloads that belong to a single project. Clients
// subscribed to another project do not receive them.
type Scoped interface {
	Scope() string
}

// TaskEvent is the payload of the task.* events.
type TaskEvent struct {
	ProjectID string `json:"project_id"`
	TaskID    string `json:"task_id"`
	Strategy  string `json:"strategy,omitempty"`
	Task      any    `json:"task,omitempty"`
}

// Scope implements Scoped.
func (e TaskEvent) Scope() string { return e.ProjectID }
