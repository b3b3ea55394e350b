package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/physical-mcp/engine/internal/alertlog"
	"github.com/physical-mcp/engine/internal/config"
	"github.com/physical-mcp/engine/internal/core"
	"github.com/physical-mcp/engine/internal/rules"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestServer builds a Server with just the stores the rules/alerts/
// templates routes touch, leaving engine/scene/tracker/memory/hub nil —
// those fields are only dereferenced by the camera/health/stream/scene
// routes, which these tests don't exercise.
func newTestServer() (*Server, *rules.Store, *alertlog.Log) {
	cfg := config.Default()
	rulesStore := rules.New()
	alertLog := alertlog.New(10, "")
	srv := New(cfg, nil, rulesStore, nil, alertLog, nil, nil, nil, zerolog.New(io.Discard))
	return srv, rulesStore, alertLog
}

func TestRuleCRUDRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer()
	r := srv.Router()

	body, _ := json.Marshal(map[string]any{
		"name":      "front door",
		"condition": "a person is at the front door",
		"camera_id": "cam1",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created core.WatchRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, len(created.ID) > 2)
	assert.True(t, created.Enabled)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rules", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var listed []core.WatchRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/rules/"+created.ID+"/toggle", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var toggled core.WatchRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &toggled))
	assert.False(t, toggled.Enabled)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/rules/"+created.ID, nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rules", nil))
	var afterDelete []core.WatchRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &afterDelete))
	assert.Empty(t, afterDelete)
}

func TestDeleteUnknownRuleReturnsNotFound(t *testing.T) {
	srv, _, _ := newTestServer()
	r := srv.Router()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/rules/r_nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(core.KindRuleNotFound), body.Code)
}

func TestAlertsCursorExcludesExactMatch(t *testing.T) {
	srv, _, alertLog := newTestServer()
	r := srv.Router()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		e := alertLog.Append(core.AlertEvent{
			EventType: core.EventProviderError,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Message:   "x",
		})
		ids = append(ids, e.EventID)
	}

	cursor := base.Add(2 * time.Minute).Format(time.RFC3339Nano)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/alerts?since="+cursor, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var events []core.AlertEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 2)
	for _, e := range events {
		assert.True(t, e.Timestamp.After(base.Add(2*time.Minute)))
	}
}

func TestTemplatesListAndCreate(t *testing.T) {
	srv, rulesStore, _ := newTestServer()
	r := srv.Router()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/templates", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var tmpls []ruleTemplate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tmpls))
	require.NotEmpty(t, tmpls)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/templates/"+tmpls[0].ID+"/create", bytes.NewReader([]byte(`{"camera_id":"cam1"}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	all := rulesStore.List(rules.Filter{})
	require.Len(t, all, 1)
	assert.Equal(t, tmpls[0].Condition, all[0].Condition)
	assert.Equal(t, "cam1", all[0].CameraID)
}

func TestCreateFromUnknownTemplateIsBadRequest(t *testing.T) {
	srv, _, _ := newTestServer()
	r := srv.Router()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/templates/does_not_exist/create", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
