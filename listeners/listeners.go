// Package listeners delivers storage change events.
package listeners

import (
	"context"
)

// Action is the kind of change an event reports
type Action string

const (
	// ActionCreate reports a created record
	ActionCreate Action = "create"
	// ActionUpdate reports an updated record
	ActionUpdate Action = "update"
	// ActionDelete reports a deleted record
	ActionDelete Action = "delete"
)

// Event describes one change to a record
type Event struct {
	Action    Action                 `json:"action"`
	Resource  string                 `json:"resource_name"`
	Parent    string                 `json:"parent_id"`
	ID        string                 `json:"id"`
	Timestamp int64                  `json:"timestamp"`
	Record    map[string]interface{} `json:"record,omitempty"`
}

// Listener is notified after each successful change.
// Notify must not block for long and cannot fail the change.
type Listener interface {
	Notify(ctx context.Context, event Event)
}

// ListenerFunc adapts a function to the Listener interface
type ListenerFunc func(ctx context.Context, event Event)

// Notify implements Listener.Notify
func (f ListenerFunc) Notify(ctx context.Context, event Event) {
	f(ctx, event)
}
