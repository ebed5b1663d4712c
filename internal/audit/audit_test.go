package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickingClock struct{ t time.Time }

func (c *tickingClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func TestTrail_NewestFirst(t *testing.T) {
	trail := NewTrail(10).WithClock(&tickingClock{t: time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)})

	trail.Record("ada", "add_entry", "Billing", "prod", "host-1", "")
	trail.Record("ada", "remove_entry", "Billing", "prod", "host-1", "")

	events := trail.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "remove_entry", events[0].Action)
	assert.Equal(t, "add_entry", events[1].Action)
	assert.True(t, events[0].Timestamp.After(events[1].Timestamp))
	assert.NotEqual(t, events[0].ID, events[1].ID)
}

func TestTrail_Bounded(t *testing.T) {
	trail := NewTrail(3)
	for i := 0; i < 5; i++ {
		trail.Record("ada", "save", "", "", "", "")
	}
	assert.Len(t, trail.Events(), 3)
}
