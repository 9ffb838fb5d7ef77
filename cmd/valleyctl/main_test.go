package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/graph"
	"github.com/chirality-ai/valley/pkg/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testDocument = `{
	"version": "1.0",
	"topic": "cli",
	"created_at": "2025-02-01T00:00:00Z",
	"components": [
		{"id": "a", "kind": "array", "station": "Objectives", "name": "Array A", "shape": [2],
		 "data": [[{"resolved": "x", "operation": "literal"}, {"resolved": "y", "operation": "literal"}]]},
		{"id": "b", "kind": "matrix", "station": "Objectives", "name": "Matrix B", "shape": [1, 1],
		 "data": [[{"resolved": "z", "raw_terms": ["z0"], "operation": "literal"}]]}
	]
}`

type harness struct {
	client *graph.GraphClient
	dir    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client, err := graph.NewGraphClient(graph.NewGraphClientParams{Gateway: memory.New()})
	require.NoError(t, err)
	return &harness{client: client, dir: t.TempDir()}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := &cli{
		in:  strings.NewReader(stdin),
		out: &out,
		openGraph: func(context.Context) (*graph.GraphClient, error) {
			return h.client, nil
		},
	}
	cmd := c.rootCmd()
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestListDelete(t *testing.T) {
	h := newHarness(t)
	path := h.writeFile(t, "doc.json", testDocument)

	out, err := h.run(t, "", "ingest", path, "-o", "json")
	require.NoError(t, err)
	var ingested []ingestRow
	require.NoError(t, json.Unmarshal([]byte(out), &ingested))
	require.Len(t, ingested, 1)
	assert.True(t, ingested[0].Created)
	assert.Len(t, ingested[0].Components, 2)

	out, err = h.run(t, "", "list", "-o", "yaml")
	require.NoError(t, err)
	var listed []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 2)
	assert.Equal(t, "Objectives", listed[0]["station_name"])

	out, err = h.run(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Matrix B")
	assert.Contains(t, out, "[1x1]")

	out, err = h.run(t, "", "list", "--kind", "Array", "-o", "json")
	require.NoError(t, err)
	var arrays []common.ComponentSummary
	require.NoError(t, json.Unmarshal([]byte(out), &arrays))
	require.Len(t, arrays, 1)
	assert.Equal(t, "Array A", arrays[0].Name)

	_, err = h.run(t, "", "list", "--kind", "cube")
	assert.Error(t, err)

	out, err = h.run(t, "", "delete", "--id", ingested[0].Components["b"], "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"deleted_components":1}`, out)

	out, err = h.run(t, "", "delete", "--id", "missing", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"deleted_components":0}`, out)
}

func TestIngestRepair(t *testing.T) {
	h := newHarness(t)
	broken := strings.TrimSuffix(strings.TrimSpace(testDocument), "}")
	path := h.writeFile(t, "broken.json", broken)

	_, err := h.run(t, "", "ingest", path)
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))

	_, err = h.run(t, "", "ingest", "--repair", path)
	require.NoError(t, err)
}

func TestDeleteStationConfirmation(t *testing.T) {
	h := newHarness(t)
	path := h.writeFile(t, "doc.json", testDocument)
	_, err := h.run(t, "", "ingest", path)
	require.NoError(t, err)

	out, err := h.run(t, "n\n", "delete-station", "--station", "Objectives")
	require.NoError(t, err)
	assert.Empty(t, out)
	list, err := h.client.ListComponents(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)

	out, err = h.run(t, "yes\n", "delete-station", "--station", "Objectives", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"deleted_components":2}`, out)

	_, err = h.run(t, "", "delete-station", "--station", "Nowhere", "--yes")
	assert.True(t, common.IsValidation(err))
}

func TestShowAndStations(t *testing.T) {
	h := newHarness(t)
	path := h.writeFile(t, "doc.json", testDocument)
	_, err := h.run(t, "", "ingest", path)
	require.NoError(t, err)

	out, err := h.run(t, "", "show", "--station", "Objectives", "-o", "json")
	require.NoError(t, err)
	var detail common.ComponentDetail
	require.NoError(t, json.Unmarshal([]byte(out), &detail))
	assert.Equal(t, "Objectives", detail.StationName)

	_, err = h.run(t, "", "show")
	assert.Error(t, err)

	_, err = h.run(t, "", "show", "--station", "Validation")
	assert.EqualError(t, err, "no component found")

	out, err = h.run(t, "", "stations", "-o", "json")
	require.NoError(t, err)
	var stations []common.StationSummary
	require.NoError(t, json.Unmarshal([]byte(out), &stations))
	require.Len(t, stations, len(common.Stations))
	assert.EqualValues(t, 2, stations[2].Components)
}

func TestBootstrapAndOutputFlag(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, "", "bootstrap")
	require.NoError(t, err)
	assert.Contains(t, out, "10 stations")

	_, err = h.run(t, "", "list", "-o", "xml")
	assert.Error(t, err)
}
