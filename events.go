package gosearchcache

import (
	"context"
)

// EventKind is the type of content mutation that fired an event.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// ContentEvent signals that indexed content changed. Invalidation is coarse,
// so ID is informational only.
type ContentEvent struct {
	Kind EventKind `json:"kind"`
	ID   int64     `json:"id,omitempty"`

	// Revision marks saves of revisions and autosaves, which do not change
	// published content.
	Revision bool `json:"revision,omitempty"`
}

// Relevant reports whether the event can change search results.
func (e ContentEvent) Relevant() bool {
	if e.Revision {
		return false
	}
	switch e.Kind {
	case EventCreated, EventUpdated, EventDeleted:
		return true
	default:
		return false
	}
}

// HandleContentEvent invalidates the whole search group for every relevant
// event. It returns true when an invalidation was attempted.
//
// Invalidation failures are logged by Invalidate; content writers are not
// blocked on them.
func (s *SearchCache) HandleContentEvent(ctx context.Context, e ContentEvent) bool {
	if !e.Relevant() {
		s.logger.DebugContext(ctx, "ignoring content event", "kind", e.Kind, "id", e.ID, "revision", e.Revision)
		return false
	}

	s.logger.DebugContext(ctx, "content changed, clearing search cache", "kind", e.Kind, "id", e.ID)
	_ = s.Invalidate(ctx, ScopeAll)

	return true
}
