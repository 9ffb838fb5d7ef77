package common

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the closed set of component variants.
type Kind string

const (
	KindMatrix Kind = "matrix"
	KindTensor Kind = "tensor"
	KindArray  Kind = "array"
)

// ParseKind validates a kind string at the boundary.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMatrix, KindTensor, KindArray:
		return k, nil
	default:
		return "", fmt.Errorf("unknown component kind %q", s)
	}
}

// UnmarshalJSON normalizes case and surrounding space of a known kind. An
// unknown kind is kept verbatim so validation can report it by field.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if parsed, err := ParseKind(s); err == nil {
		*k = parsed
		return nil
	}
	*k = Kind(s)
	return nil
}

// Tag returns the secondary node label used to filter components by variant.
func (k Kind) Tag() string {
	switch k {
	case KindMatrix:
		return "Matrix"
	case KindTensor:
		return "Tensor"
	case KindArray:
		return "Array"
	}
	return ""
}

// TermType tags a term as raw, intermediate or resolved.
type TermType string

const (
	TermRaw          TermType = "raw"
	TermIntermediate TermType = "intermediate"
	TermResolved     TermType = "resolved"
)

// Node labels.
const (
	LabelValley         = "Valley"
	LabelStation        = "Station"
	LabelDocument       = "Document"
	LabelComponent      = "Component"
	LabelAxis           = "Axis"
	LabelCell           = "Cell"
	LabelTerm           = "Term"
	LabelKnowledgeField = "KnowledgeField"
)

// Relationship types.
const (
	RelHasStation   = "HAS_STATION"
	RelNext         = "NEXT"
	RelTraverses    = "TRAVERSES"
	RelHasComponent = "HAS_COMPONENT"
	RelAtStation    = "AT_STATION"
	RelPertainsTo   = "PERTAINS_TO"
	RelHasAxis      = "HAS_AXIS"
	RelHasCell      = "HAS_CELL"
	RelContainsTerm = "CONTAINS_TERM"
	RelResolvesTo   = "RESOLVES_TO"
)

// ValleyName is the name of the singleton root container.
const ValleyName = "Chirality Valley"

// Stations is the fixed, ordered catalog of processing stations.
var Stations = []string{
	"Problem Statement",
	"Requirements",
	"Objectives",
	"Verification",
	"Validation",
	"Evaluation",
	"Assessment",
	"Implementation",
	"Reflection",
	"Resolution",
}
