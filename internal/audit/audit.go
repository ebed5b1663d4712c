// Package audit keeps a bounded in-session trail of schedule actions,
// newest first. The trail is informational; it is never pushed remotely.
package audit

import (
	"time"

	"github.com/google/uuid"

	"powersched/internal/types"
)

// Event is one recorded action.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
	App       string    `json:"application,omitempty"`
	Env       string    `json:"environment,omitempty"`
	Host      string    `json:"hostname,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Trail is a bounded newest-first event log.
type Trail struct {
	events []Event
	limit  int
	clock  types.Clock
}

// NewTrail creates a trail keeping at most limit events.
func NewTrail(limit int) *Trail {
	if limit <= 0 {
		limit = 200
	}
	return &Trail{limit: limit, clock: types.RealClock{}}
}

// WithClock overrides the timestamp source, for tests.
func (t *Trail) WithClock(clock types.Clock) *Trail {
	t.clock = clock
	return t
}

// Record prepends an event, dropping the oldest past the limit.
func (t *Trail) Record(user, action, app, env, host, detail string) Event {
	e := Event{
		ID:        uuid.NewString(),
		Timestamp: t.clock.Now(),
		User:      user,
		Action:    action,
		App:       app,
		Env:       env,
		Host:      host,
		Detail:    detail,
	}
	t.events = append([]Event{e}, t.events...)
	if len(t.events) > t.limit {
		t.events = t.events[:t.limit]
	}
	return e
}

// Events returns the trail newest first.
func (t *Trail) Events() []Event {
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}
