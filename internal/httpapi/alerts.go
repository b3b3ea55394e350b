package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/physical-mcp/engine/internal/alertlog"
)

// handleListAlerts serves GET /alerts?since=&until=&camera_id=&event_type=&limit=
// (spec §4.9/§4.11): deterministic replay with an exclusive since
// cursor, tolerant timestamp parsing, and case/whitespace-normalized
// camera_id/event_type matching, all implemented in alertlog.Log.Query.
func (s *Server) handleListAlerts(c *gin.Context) {
	filter := alertlog.Filter{
		Since:     c.Query("since"),
		Until:     c.Query("until"),
		CameraID:  c.Query("camera_id"),
		EventType: c.Query("event_type"),
	}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}
	c.JSON(http.StatusOK, s.alertLog.Query(filter))
}

// changeRow is one entry of the cross-camera change feed /changes
// returns: a scene change_log entry tagged with the camera it came
// from, since spec.md describes the endpoint as spanning "across
// cameras" rather than one camera's change_log alone.
type changeRow struct {
	CameraID    string    `json:"camera_id"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

// handleChanges serves GET /changes[?since=&camera_id=&wait=bool]
// (spec §4.11): a lazily-built view over every camera's scene
// change_log, optionally long-polling until a newer entry appears or
// the client disconnects.
func (s *Server) handleChanges(c *gin.Context) {
	since := c.Query("since")
	cameraFilter := c.Query("camera_id")
	wait := c.Query("wait") == "true"

	collect := func() []changeRow {
		var sinceTime time.Time
		var haveSince bool
		if since != "" {
			if t, ok := alertlog.ParseTimestamp(since); ok {
				sinceTime, haveSince = t, true
			}
		}

		rows := make([]changeRow, 0)
		for cameraID, st := range s.sceneStore.All() {
			if cameraFilter != "" && cameraFilter != cameraID {
				continue
			}
			for _, entry := range st.ChangeLog {
				if haveSince && !entry.Timestamp.After(sinceTime) {
					continue
				}
				rows = append(rows, changeRow{CameraID: cameraID, Timestamp: entry.Timestamp, Description: entry.Description})
			}
		}
		return rows
	}

	rows := collect()
	if !wait || len(rows) > 0 {
		c.JSON(http.StatusOK, gin.H{"changes": rows})
		return
	}

	// Long-poll: re-check on a short ticker until a new entry appears,
	// the client disconnects, or the request's own timeout elapses
	// (spec §5: HTTP request timeout 10s bounds how long this can
	// block, same as every other suspension point in the system).
	ctx := c.Request.Context()
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(10 * time.Second)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			c.JSON(http.StatusOK, gin.H{"changes": []changeRow{}})
			return
		case <-ticker.C:
			if rows := collect(); len(rows) > 0 {
				c.JSON(http.StatusOK, gin.H{"changes": rows})
				return
			}
		}
	}
}
