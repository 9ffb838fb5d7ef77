// Package identity derives deterministic, content-addressed identifiers for
// every node written to the graph. Identical content always yields identical
// identifiers, which turns repeated ingestion into a merge instead of a
// duplicate write.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/chirality-ai/valley/pkg/common"
)

const digestLen = 16

// Canonicalize normalises s for hashing: Unicode NFC, case folding, trimmed,
// and every run of whitespace collapsed to a single space.
func Canonicalize(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// hash joins parts with a separator that cannot occur after canonicalisation
// and returns a prefixed, truncated sha256 digest.
func hash(prefix string, parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(p))
	}
	return prefix + "_" + hex.EncodeToString(h.Sum(nil))[:digestLen]
}

// ValleyID is the id of the singleton root container.
func ValleyID() string {
	return hash("valley", Canonicalize(common.ValleyName))
}

// StationID is derived from the station name only, so merge-by-name holds.
func StationID(name string) string {
	return hash("station", Canonicalize(name))
}

// KnowledgeFieldID is derived from the topic name.
func KnowledgeFieldID(topic string) string {
	return hash("kf", Canonicalize(topic))
}

// DocumentID returns callerID when set, otherwise a digest of
// (topic, version, created_at).
func DocumentID(callerID, topic, version, createdAt string) string {
	if id := strings.TrimSpace(callerID); id != "" {
		return id
	}
	return hash("doc", Canonicalize(topic), Canonicalize(version), strings.TrimSpace(createdAt))
}

// ComponentID is hash(document_id, kind, name, station).
func ComponentID(documentID string, kind common.Kind, name, station string) string {
	return hash("comp", documentID, string(kind), Canonicalize(name), Canonicalize(station))
}

// SourceComponentID is used when a component has no name: the caller's
// component id stands in for it so that unnamed siblings stay distinct.
func SourceComponentID(documentID string, kind common.Kind, sourceID, station string) string {
	return hash("comp", documentID, string(kind), "#"+Canonicalize(sourceID), Canonicalize(station))
}

// AxisID identifies the axis at position within a component.
func AxisID(componentID string, position int, name string) string {
	return hash("axis", componentID, strconv.Itoa(position), Canonicalize(name))
}

// CellID is hash(component_id, row, col, canonical(resolved)).
func CellID(componentID string, row, col int, resolved string) string {
	return hash("cell", componentID, strconv.Itoa(row), strconv.Itoa(col), Canonicalize(resolved))
}

// TermID identifies the ordinal-th term of a type within its cell.
func TermID(cellID string, typ common.TermType, ordinal int, value string) string {
	return hash("term", cellID, string(typ), strconv.Itoa(ordinal), Canonicalize(value))
}

// ContentHash fingerprints an arbitrary canonical payload.
func ContentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
