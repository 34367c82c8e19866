package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/aquactl/db"
	"github.com/thatsimonsguy/aquactl/internal/controllers/schedulecontroller"
	"github.com/thatsimonsguy/aquactl/internal/output"
	"github.com/thatsimonsguy/aquactl/internal/schedule"
)

type testEnv struct {
	handler  http.Handler
	registry *output.Registry
	fakes    map[string]*output.Fake
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	events, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() })

	fakes := map[string]*output.Fake{}
	factory := output.NewFactory()
	factory.RegisterInterface("fake", func(id string, desc json.RawMessage) (output.Output, error) {
		out, err := output.FakeConstructor(id, desc)
		if err == nil {
			fakes[id] = out.(*output.Fake)
		}
		return out, err
	})
	registry := output.NewRegistry(factory, events)
	require.NoError(t, registry.AddOutput([]byte(`{"id": "light", "type": "fake", "description": {"default": "off"}}`)))
	require.NoError(t, registry.AddOutput([]byte(`{"id": "pump", "type": "fake", "description": {"default": {"type": "unsigned int", "default": 40, "range": [0, 100]}}}`)))

	actions := schedule.NewActions()
	handler := schedulecontroller.New(registry, actions)
	loader := &schedule.Loader{
		Outputs:   registry,
		Actions:   actions,
		Scheduler: handler,
		Parser:    schedule.NewParser(schedule.DefaultDateLayout),
	}

	return &testEnv{
		handler:  NewServer(registry, handler, loader, events).Handler(),
		registry: registry,
		fakes:    fakes,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestGetOutputs(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodGet, "/api/outputs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var outputs []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outputs))
	require.Len(t, outputs, 2)
	assert.Equal(t, "light", outputs[0]["id"])
	assert.Equal(t, "fake", outputs[0]["type"])
	assert.Equal(t, "off", outputs[0]["state"])
	assert.Equal(t, false, outputs[0]["overridden"])
	assert.Equal(t, float64(40), outputs[1]["state"])
}

func TestGetOutput_NotFound(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodGet, "/api/outputs/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Output not found", resp.Error)
}

func TestOverrideAndRestore(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodPut, "/api/outputs/pump/override", []byte(`{"value": 75}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["overridden"])
	assert.Equal(t, float64(75), resp["state"])
	assert.Equal(t, float64(75), resp["override"])

	w = env.do(t, http.MethodDelete, "/api/outputs/pump/override", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["overridden"])
	assert.Equal(t, float64(40), resp["state"])
	_, present := resp["override"]
	assert.False(t, present)

	written := env.fakes["pump"].Written()
	require.Len(t, written, 2)
}

func TestOverride_Rejected(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"invalid json", "/api/outputs/pump/override", `{"value":`, http.StatusBadRequest},
		{"missing value", "/api/outputs/pump/override", `{}`, http.StatusBadRequest},
		{"out of range", "/api/outputs/pump/override", `{"value": 101}`, http.StatusBadRequest},
		{"wrong kind", "/api/outputs/light/override", `{"value": 3}`, http.StatusBadRequest},
		{"unknown output", "/api/outputs/nope/override", `{"value": "on"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPut, tt.path, []byte(tt.body))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	_, overridden, err := env.registry.IsOverridden("pump")
	require.NoError(t, err)
	assert.False(t, overridden)
}

func TestOverride_TransportFailure(t *testing.T) {
	env := setupTestServer(t)
	env.fakes["light"].Fail = errors.New("bus down")

	w := env.do(t, http.MethodPut, "/api/outputs/light/override", []byte(`{"value": "on"}`))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	_, overridden, _ := env.registry.IsOverridden("light")
	assert.True(t, overridden)
}

const feedingFile = `{
	"gpios": [{"id": "feeder", "type": "fake", "description": {"default": "off"}}],
	"actions": [{"id": 7, "outputs": [{"id": "feeder", "value": "on"}]}],
	"schedule": {
		"title": "feeding",
		"start_at": "2024-03-01",
		"end_at": "2024-03-08",
		"events": [{"id": 1, "day": 0, "trigger_at": "09:00", "actions": [7]}]
	}
}`

func TestCreateSchedule(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodPost, "/api/schedules", []byte(feedingFile))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created ScheduleCreatedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "feeding", created.Title)
	assert.Equal(t, 1, created.Events)
	assert.True(t, created.Pending)

	w = env.do(t, http.MethodGet, "/api/schedules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var schedules []schedulecontroller.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &schedules))
	require.Len(t, schedules, 1)
	assert.Equal(t, "feeding", schedules[0].Title)
	assert.False(t, schedules[0].Active)
	assert.Equal(t, "2024-03-01", schedules[0].Start)

	assert.Contains(t, env.registry.IDs(), "feeder")

	// same file again collides on the output id and rolls back entirely
	w = env.do(t, http.MethodPost, "/api/schedules", []byte(feedingFile))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Len(t, env.registry.IDs(), 3)
}

func TestCreateSchedule_Invalid(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodPost, "/api/schedules", []byte(`{"schedule": {"events": [{"id": 1, "day": 0, "trigger_at": "09:00", "actions": [99]}]}}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/schedules", nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGetEvents(t *testing.T) {
	env := setupTestServer(t)

	env.do(t, http.MethodPut, "/api/outputs/light/override", []byte(`{"value": "on"}`))
	env.do(t, http.MethodPut, "/api/outputs/pump/override", []byte(`{"value": 10}`))
	env.do(t, http.MethodDelete, "/api/outputs/light/override", nil)

	w := env.do(t, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []db.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "restore", entries[0].Op)

	w = env.do(t, http.MethodGet, "/api/events?output=pump&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "10", entries[0].Value)
	assert.True(t, entries[0].Overridden)

	w = env.do(t, http.MethodGet, "/api/events?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetEvents_Disabled(t *testing.T) {
	registry := output.NewRegistry(output.NewFactory())
	handler := NewServer(registry, schedulecontroller.New(registry, schedule.NewActions()), nil, nil).Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORS(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodOptions, "/api/outputs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}
