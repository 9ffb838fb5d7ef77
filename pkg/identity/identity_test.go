package identity

import (
	"strings"
	"testing"

	"github.com/chirality-ai/valley/pkg/common"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Requirements", "requirements"},
		{"  Problem   Statement\t", "problem statement"},
		{"E\u0301TAT", "\u00e9tat"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Canonicalize(tt.in), "Canonicalize(%q)", tt.in)
	}
}

func TestStationIDIgnoresCaseAndSpacing(t *testing.T) {
	assert.Equal(t, StationID("Problem Statement"), StationID("  problem   STATEMENT "))
	assert.NotEqual(t, StationID("Requirements"), StationID("Objectives"))
	assert.True(t, strings.HasPrefix(StationID("Requirements"), "station_"))
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "caller-id", DocumentID(" caller-id ", "t", "1", "2025"))

	a := DocumentID("", "Topic", "1.0", "2025-01-01")
	b := DocumentID("", "topic", "1.0", "2025-01-01")
	c := DocumentID("", "Topic", "1.1", "2025-01-01")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, len("doc_")+digestLen)
}

func TestComponentIDs(t *testing.T) {
	named := ComponentID("doc_1", common.KindMatrix, "Matrix C", "Requirements")
	assert.Equal(t, named, ComponentID("doc_1", common.KindMatrix, "matrix  c", "requirements"))
	assert.NotEqual(t, named, ComponentID("doc_1", common.KindTensor, "Matrix C", "Requirements"))
	assert.NotEqual(t, named, ComponentID("doc_2", common.KindMatrix, "Matrix C", "Requirements"))

	// an unnamed component keyed by source id must not collide with a named one
	assert.NotEqual(t, ComponentID("doc_1", common.KindMatrix, "x", ""), SourceComponentID("doc_1", common.KindMatrix, "x", ""))
}

func TestCellAndTermIDs(t *testing.T) {
	cell := CellID("comp_1", 0, 1, "Value")
	assert.Equal(t, cell, CellID("comp_1", 0, 1, "value"))
	assert.NotEqual(t, cell, CellID("comp_1", 1, 0, "Value"))

	raw := TermID(cell, common.TermRaw, 0, "a")
	assert.NotEqual(t, raw, TermID(cell, common.TermResolved, 0, "a"))
	assert.NotEqual(t, raw, TermID(cell, common.TermRaw, 1, "a"))
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, ContentHash([]byte("x")), ContentHash([]byte("x")))
	assert.NotEqual(t, ContentHash([]byte("x")), ContentHash([]byte("y")))
	assert.Len(t, ContentHash(nil), 64)
}
