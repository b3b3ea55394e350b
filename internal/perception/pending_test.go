package perception

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/physical-mcp/engine/internal/core"
)

func TestPendingQueuePushAssignsIDAndTimestamp(t *testing.T) {
	q := newPendingQueue()
	p := q.push(core.PendingAlert{CameraID: "cam1"})
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())
	assert.Len(t, q.list(), 1)
}

func TestPendingQueueEvictsOldestAtCapacity(t *testing.T) {
	q := newPendingQueue()
	var firstID string
	for i := 0; i < core.MaxPendingAlertsPerCamera+10; i++ {
		p := q.push(core.PendingAlert{CameraID: "cam1"})
		if i == 0 {
			firstID = p.ID
		}
	}
	list := q.list()
	assert.Len(t, list, core.MaxPendingAlertsPerCamera)
	for _, p := range list {
		assert.NotEqual(t, firstID, p.ID, "oldest entry should have been evicted")
	}
}

func TestPendingQueueRemove(t *testing.T) {
	q := newPendingQueue()
	p := q.push(core.PendingAlert{CameraID: "cam1"})

	got, ok := q.remove(p.ID)
	assert.True(t, ok)
	assert.Equal(t, p.ID, got.ID)
	assert.Empty(t, q.list())

	_, ok = q.remove(p.ID)
	assert.False(t, ok, "removing twice should fail the second time")
}
