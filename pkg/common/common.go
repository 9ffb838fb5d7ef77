package common

// Document is one ingested Chirality artifact. It owns an ordered list of
// components, each of which is decomposed into axes, addressed cells and
// terms when persisted.
//
// ID is optional. When empty, a content-derived identifier is computed from
// Topic, Version and CreatedAt so that re-submitting the same payload always
// targets the same graph nodes.
type Document struct {
	ID         string         `json:"id,omitempty"`
	Version    string         `json:"version" validate:"required"`
	Topic      string         `json:"topic"`
	CreatedAt  string         `json:"created_at"`
	Meta       map[string]any `json:"meta,omitempty"`
	Components []Component    `json:"components" validate:"dive"`
}

// Component is a typed semantic container (matrix, tensor or array).
//
// ID is the caller's identifier for the component inside the submitted
// document. The persisted node gets a generated identifier instead; the
// ingestion result maps one onto the other.
//
// Data is the 2-D grid of cells addressed by (row, col). See GridDims for how
// Shape maps onto the grid for each kind.
type Component struct {
	ID       string         `json:"id" validate:"required"`
	Kind     Kind           `json:"kind" validate:"required,oneof=matrix tensor array"`
	Station  *string        `json:"station"`
	Name     *string        `json:"name"`
	Axes     []Axis         `json:"axes" validate:"dive"`
	Shape    []int          `json:"shape" validate:"required,min=1,dive,min=0"`
	Ontology map[string]any `json:"ontology,omitempty"`
	Data     [][]Cell       `json:"data"`
}

// Axis is a named, labeled dimension of a component.
type Axis struct {
	Name   string   `json:"name" validate:"required"`
	Labels []string `json:"labels"`
}

// Cell is a single addressed value in a component grid. The resolved value
// is opaque to this service: it is produced upstream and persisted as-is.
type Cell struct {
	Resolved     string   `json:"resolved"`
	RawTerms     []string `json:"raw_terms"`
	Intermediate []string `json:"intermediate"`
	Operation    string   `json:"operation"`
	Notes        *string  `json:"notes,omitempty"`
}

// StationName returns the component's station or "" when none is set.
func (c Component) StationName() string {
	if c.Station == nil {
		return ""
	}
	return *c.Station
}

// DisplayName returns the component's name or "" when none is set.
func (c Component) DisplayName() string {
	if c.Name == nil {
		return ""
	}
	return *c.Name
}

// GridDims returns the (rows, cols) extent of the cell grid implied by the
// component's kind and shape. Arrays are a single row, matrices map
// directly and tensors fold every trailing dimension into the column axis.
func (c Component) GridDims() (rows, cols int) {
	if len(c.Shape) == 0 {
		return 0, 0
	}
	switch c.Kind {
	case KindArray:
		return 1, c.Shape[0]
	case KindMatrix:
		if len(c.Shape) < 2 {
			return c.Shape[0], 1
		}
		return c.Shape[0], c.Shape[1]
	default:
		cols = 1
		for _, d := range c.Shape[1:] {
			cols *= d
		}
		return c.Shape[0], cols
	}
}

// IngestResult is what a successful ingestion returns: the document
// identifier plus a map from each submitted component id to its node id.
type IngestResult struct {
	DocumentID string            `json:"documentId"`
	Components map[string]string `json:"components"`
	Created    bool              `json:"created"`
}

// ComponentSummary is the listing view of a persisted component.
//
// Station is the denormalised string stored on the component node and is a
// display cache only. StationName is resolved through the AT_STATION edge
// and is authoritative.
type ComponentSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Station     string `json:"station"`
	StationName string `json:"station_name"`
	Shape       []int  `json:"shape"`
}

// ComponentDetail is a persisted component rebuilt into the ingestion
// layout, used by the structural query endpoints.
type ComponentDetail struct {
	ComponentSummary
	DocumentID string         `json:"document_id"`
	SourceID   string         `json:"source_id"`
	Ontology   map[string]any `json:"ontology,omitempty"`
	Axes       []Axis         `json:"axes"`
	Data       [][]Cell       `json:"data"`
}

// StationSummary describes one station of the pipeline chain.
type StationSummary struct {
	Name       string `json:"name"`
	Position   int    `json:"position"`
	Next       string `json:"next,omitempty"`
	Components int64  `json:"components"`
}
