package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/chirality-ai/valley/internal/queue"
	mid "github.com/chirality-ai/valley/internal/server/middleware"
	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/graph"
	"github.com/chirality-ai/valley/pkg/store/memory"

	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDocument = `{
	"version": "1.0",
	"topic": "chirality",
	"created_at": "2025-01-01T00:00:00Z",
	"components": [{
		"id": "m1",
		"kind": "matrix",
		"station": "Requirements",
		"name": "Matrix C",
		"axes": [{"name": "Level", "labels": ["Normative", "Operative"]}],
		"shape": [2, 1],
		"data": [
			[{"resolved": "A", "raw_terms": ["a1"], "intermediate": [], "operation": "literal"}],
			[{"resolved": "B", "raw_terms": [], "intermediate": ["b*"], "operation": "derive"}]
		]
	}]
}`

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	body [][]byte
}

func (p *recordingPublisher) Publish(_, key string, _, _ bool, msg amqp091.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.body = append(p.body, msg.Body)
	return nil
}

func newTestApp(t *testing.T) *mid.App {
	t.Helper()
	client, err := graph.NewGraphClient(graph.NewGraphClientParams{Gateway: memory.New()})
	require.NoError(t, err)
	require.NoError(t, client.EnsurePipeline(context.Background(), client.Stations()))
	return &mid.App{Graph: client}
}

func do(t *testing.T, e *echo.Echo, method, target, body string, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	e := New(newTestApp(t))
	rec, _ := do(t, e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestIngestListDeleteScenario(t *testing.T) {
	e := New(newTestApp(t))

	rec, out := do(t, e, http.MethodPost, "/api/graph/ingest", scenarioDocument)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["success"])
	assert.NotEmpty(t, out["documentId"])

	rec, out = do(t, e, http.MethodPost, "/api/neo4j/delete", `{"delete_type":"list_components"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	components := out["components"].([]any)
	require.Len(t, components, 1)
	component := components[0].(map[string]any)
	assert.Equal(t, []any{float64(2), float64(1)}, component["shape"])
	assert.Equal(t, "Requirements", component["station_name"])

	rec, out = do(t, e, http.MethodPost, "/api/graph/delete", `{"delete_type":"list_components","kind":"Array"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, out["components"])
	rec, out = do(t, e, http.MethodPost, "/api/graph/delete", `{"delete_type":"list_components","kind":"matrix"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["components"], 1)

	body := `{"delete_type":"component_and_related","component_id":"` + component["id"].(string) + `"}`
	rec, out = do(t, e, http.MethodPost, "/api/graph/delete", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["deleted_components"])

	rec, out = do(t, e, http.MethodPost, "/api/graph/delete", `{"delete_type":"list_components"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, out["components"])
}

func TestDeleteMissingComponent(t *testing.T) {
	e := New(newTestApp(t))
	rec, out := do(t, e, http.MethodPost, "/api/graph/delete", `{"delete_type":"component_and_related","component_id":"nope"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), out["deleted_components"])
}

func TestErrorMapping(t *testing.T) {
	app := newTestApp(t)
	e := New(app)
	_, err := app.Graph.Ingest(context.Background(), mustDocument(t, scenarioDocument))
	require.NoError(t, err)

	changed := strings.Replace(scenarioDocument, `"resolved": "B"`, `"resolved": "C"`, 1)
	unknownStation := strings.Replace(scenarioDocument, `"Requirements"`, `"Nowhere"`, 1)

	tests := []struct {
		name   string
		target string
		body   string
		status int
	}{
		{"unknown delete type", "/api/graph/delete", `{"delete_type":"drop_everything"}`, http.StatusBadRequest},
		{"missing delete type", "/api/graph/delete", `{}`, http.StatusBadRequest},
		{"delete without id", "/api/graph/delete", `{"delete_type":"component_and_related"}`, http.StatusBadRequest},
		{"delete at unknown station", "/api/graph/delete", `{"delete_type":"delete_all_at_station","station":"Nowhere"}`, http.StatusBadRequest},
		{"unknown station", "/api/graph/ingest", unknownStation, http.StatusBadRequest},
		{"malformed json", "/api/graph/ingest", `{"version":`, http.StatusBadRequest},
		{"changed content", "/api/graph/ingest", changed, http.StatusConflict},
		{"query missing component", "/api/graph/query", `{"query_type":"get_matrix_by_id","component_id":"nope"}`, http.StatusNotFound},
		{"query empty station", "/api/graph/query", `{"query_type":"get_latest_matrix_by_station","station":"Objectives"}`, http.StatusNotFound},
		{"unknown query type", "/api/graph/query", `{"query_type":"cypher"}`, http.StatusBadRequest},
		{"list unknown kind", "/api/graph/delete", `{"delete_type":"list_components","kind":"cube"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := do(t, e, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, false, out["success"])
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestReingestIsNoOp(t *testing.T) {
	e := New(newTestApp(t))
	_, first := do(t, e, http.MethodPost, "/api/graph/ingest", scenarioDocument)
	rec, second := do(t, e, http.MethodPost, "/api/neo4j/ingest-ufo", scenarioDocument)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first["documentId"], second["documentId"])
	assert.Equal(t, first["components"], second["components"])
	assert.Equal(t, "Document already ingested", second["message"])
}

func TestReingestRestoresDeletedComponent(t *testing.T) {
	e := New(newTestApp(t))
	_, first := do(t, e, http.MethodPost, "/api/graph/ingest", scenarioDocument)
	id := first["components"].(map[string]any)["m1"].(string)

	rec, out := do(t, e, http.MethodPost, "/api/graph/delete", `{"delete_type":"component_and_related","component_id":"`+id+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["deleted_components"])

	rec, again := do(t, e, http.MethodPost, "/api/graph/ingest", scenarioDocument)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Document ingested", again["message"])

	rec, _ = do(t, e, http.MethodPost, "/api/graph/query", `{"query_type":"get_matrix_by_id","component_id":"`+id+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueryComponent(t *testing.T) {
	app := newTestApp(t)
	e := New(app)
	res, err := app.Graph.Ingest(context.Background(), mustDocument(t, scenarioDocument))
	require.NoError(t, err)

	rec, out := do(t, e, http.MethodPost, "/api/graph/query", `{"query_type":"get_matrix_by_id","component_id":"`+res.Components["m1"]+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	component := out["component"].(map[string]any)
	assert.Equal(t, "Matrix C", component["name"])
	data := component["data"].([]any)
	require.Len(t, data, 2)
	cell := data[1].([]any)[0].(map[string]any)
	assert.Equal(t, "B", cell["resolved"])
	assert.Equal(t, []any{"b*"}, cell["intermediate"])

	rec, out = do(t, e, http.MethodPost, "/api/neo4j/query", `{"query_type":"get_latest_matrix_by_station","station":"Requirements"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, res.Components["m1"], out["component"].(map[string]any)["id"])
}

func TestStationsAndSchema(t *testing.T) {
	e := New(newTestApp(t))

	rec, out := do(t, e, http.MethodGet, "/api/graph/stations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stations := out["stations"].([]any)
	require.Len(t, stations, len(common.Stations))
	assert.Equal(t, common.Stations[0], stations[0].(map[string]any)["name"])
	assert.Equal(t, common.Stations[1], stations[0].(map[string]any)["next"])

	rec, out = do(t, e, http.MethodGet, "/api/graph/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, out, "properties")
}

func TestAsyncIngest(t *testing.T) {
	app := newTestApp(t)
	e := New(app)

	rec, _ := do(t, e, http.MethodPost, "/api/graph/ingest?async=true", scenarioDocument)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	pub := &recordingPublisher{}
	app.Queue = pub
	rec, out := do(t, e, http.MethodPost, "/api/graph/ingest?async=true", scenarioDocument)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.NotEmpty(t, out["job_id"])

	require.Len(t, pub.keys, 1)
	assert.Equal(t, queue.IngestQueue, pub.keys[0])
	var msg queue.IngestMsg
	require.NoError(t, json.Unmarshal(pub.body[0], &msg))
	assert.Equal(t, out["documentId"], msg.DocumentID)
	require.NotNil(t, msg.Document)

	// nothing is written until the worker runs
	list, err := app.Graph.ListComponents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	rec, _ = do(t, e, http.MethodPost, "/api/graph/delete?async=true", `{"delete_type":"delete_all_at_station","station":"Requirements"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, queue.DeleteQueue, pub.keys[1])
}

func TestMasterKeyAuth(t *testing.T) {
	app := newTestApp(t)
	app.MasterAPIKey = "secret"
	app.MasterUserID = 1
	app.MasterUserRole = "admin"
	e := New(app)

	rec, _ := do(t, e, http.MethodGet, "/api/graph/stations", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/graph/stations", "", echo.HeaderAuthorization, "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/graph/stations", "", echo.HeaderAuthorization, "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func mustDocument(t *testing.T, raw string) common.Document {
	t.Helper()
	var doc common.Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc
}
