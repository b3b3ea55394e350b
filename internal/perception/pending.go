package perception

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/physical-mcp/engine/internal/core"
)

// pendingQueue is the bounded, per-camera client-side-mode queue (spec
// §4.8 step 6, §9 MaxPendingAlertsPerCamera). Oldest entries are
// evicted FIFO once capacity is reached, the same discipline
// capture.Buffer uses for frames.
type pendingQueue struct {
	mu      sync.Mutex
	entries []core.PendingAlert
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{}
}

func (q *pendingQueue) push(p core.PendingAlert) core.PendingAlert {
	if p.ID == "" {
		p.ID = "pend_" + randomSuffix()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, p)
	if len(q.entries) > core.MaxPendingAlertsPerCamera {
		q.entries = q.entries[len(q.entries)-core.MaxPendingAlertsPerCamera:]
	}
	return p
}

func (q *pendingQueue) list() []core.PendingAlert {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]core.PendingAlert(nil), q.entries...)
}

// remove deletes the pending alert with the given id, if present.
func (q *pendingQueue) remove(id string) (core.PendingAlert, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.entries {
		if p.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return p, true
		}
	}
	return core.PendingAlert{}, false
}

func randomSuffix() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}
