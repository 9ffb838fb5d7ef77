package graph

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/identity"
	"github.com/chirality-ai/valley/pkg/logger"
	"github.com/chirality-ai/valley/pkg/metrics"
	"github.com/chirality-ai/valley/pkg/store"
)

// batch is one ordered group of writes. Nodes are merged before edges so
// every edge finds both endpoints.
type batch struct {
	label string
	nodes []store.Node
	edges []store.Edge
}

// IngestPlan is the complete, precomputed write set for one document.
type IngestPlan struct {
	documentID  string
	contentHash string
	batches     []batch
	components  map[string]string
}

// Ingest persists doc as one atomic unit: the Document, its Components and
// every Axis, Cell and Term beneath them either all become visible or none
// do. Re-ingesting an identical payload returns the same identifiers and
// recreates only the parts a delete removed; Created reports whether any
// node was written. Re-using a document id for different content fails with a
// ValidationError wrapping common.ErrConflict.
func (g *GraphClient) Ingest(ctx context.Context, doc common.Document) (common.IngestResult, error) {
	start := time.Now()
	res, err := g.ingest(ctx, doc)
	metrics.Observe("ingest", start, err)
	return res, err
}

func (g *GraphClient) ingest(ctx context.Context, doc common.Document) (common.IngestResult, error) {
	if err := ValidateDocument(doc, g.stations); err != nil {
		return common.IngestResult{}, err
	}
	plan, err := PlanIngest(doc)
	if err != nil {
		return common.IngestResult{}, err
	}
	if err := g.EnsurePipeline(ctx, g.stations); err != nil {
		return common.IngestResult{}, err
	}

	result := common.IngestResult{
		DocumentID: plan.documentID,
		Components: plan.components,
	}
	var created map[string]int64

	err = g.gateway.WithTransaction(ctx, func(ctx context.Context, s store.Session) error {
		created = map[string]int64{}
		result.Created = false

		existing, err := s.GetNode(ctx, plan.documentID)
		switch {
		case err == nil:
			if existing.Label != common.LabelDocument || existing.String("content_hash") != plan.contentHash {
				return &common.ValidationError{
					Field:  "id",
					Reason: "document " + plan.documentID + " was already ingested with different content",
					Err:    common.ErrConflict,
				}
			}
		case !errors.Is(err, common.ErrNotFound):
			return err
		}

		// Merges are create-if-absent, so an unchanged document only
		// restores what a delete removed.
		var total int64
		for _, b := range plan.batches {
			n, err := s.MergeNodes(ctx, b.nodes)
			if err != nil {
				return err
			}
			created[b.label] += n
			total += n
			if _, err := s.MergeEdges(ctx, b.edges); err != nil {
				return err
			}
		}
		result.Created = total > 0
		return nil
	})
	if err != nil {
		if !common.IsValidation(err) {
			logger.Error("[Graph][Ingest] Ingestion rolled back", "document", plan.documentID, "err", err)
		}
		return common.IngestResult{}, err
	}

	for label, n := range created {
		metrics.NodesCreated.WithLabelValues(label).Add(float64(n))
	}
	if result.Created {
		logger.Info("[Graph][Ingest] Document ingested", "document", plan.documentID, "components", len(plan.components))
	} else {
		logger.Debug("[Graph][Ingest] Document unchanged", "document", plan.documentID)
	}
	return result, nil
}

// PlanIngest computes every identifier and the ordered write set for doc
// without touching the store. doc is expected to have passed
// ValidateDocument.
func PlanIngest(doc common.Document) (*IngestPlan, error) {
	docID := identity.DocumentID(doc.ID, doc.Topic, doc.Version, doc.CreatedAt)

	canonical := doc
	canonical.ID = docID
	payload, err := json.Marshal(canonical)
	if err != nil {
		return nil, common.Invalid("document", "cannot encode document: %v", err)
	}

	plan := &IngestPlan{
		documentID:  docID,
		contentHash: identity.ContentHash(payload),
		components:  make(map[string]string, len(doc.Components)),
	}

	head := batch{label: common.LabelDocument}
	head.nodes = append(head.nodes, store.Node{
		ID:    docID,
		Label: common.LabelDocument,
		Props: map[string]any{
			"version":         doc.Version,
			"topic":           doc.Topic,
			"created_at":      doc.CreatedAt,
			"meta":            doc.Meta,
			"content_hash":    plan.contentHash,
			"component_count": len(doc.Components),
		},
	})
	head.edges = append(head.edges, store.Edge{From: docID, Rel: common.RelTraverses, To: identity.ValleyID()})

	var fieldID string
	if topic := strings.TrimSpace(doc.Topic); topic != "" {
		fieldID = identity.KnowledgeFieldID(topic)
		head.nodes = append(head.nodes, store.Node{
			ID:    fieldID,
			Label: common.LabelKnowledgeField,
			Props: map[string]any{"name": topic},
		})
	}
	plan.batches = append(plan.batches, head)

	byNodeID := make(map[string]string, len(doc.Components))
	for i, c := range doc.Components {
		compID := componentNodeID(docID, c)
		if prev, dup := byNodeID[compID]; dup {
			return nil, common.Invalid("components", "components %q and %q resolve to the same node", prev, c.ID)
		}
		byNodeID[compID] = c.ID
		plan.components[c.ID] = compID

		plan.batches = append(plan.batches, planComponent(docID, fieldID, i, compID, c)...)
	}
	return plan, nil
}

func componentNodeID(docID string, c common.Component) string {
	station := strings.TrimSpace(c.StationName())
	if name := strings.TrimSpace(c.DisplayName()); name != "" {
		return identity.ComponentID(docID, c.Kind, name, station)
	}
	return identity.SourceComponentID(docID, c.Kind, c.ID, station)
}

func planComponent(docID, fieldID string, index int, compID string, c common.Component) []batch {
	station := strings.TrimSpace(c.StationName())
	name := strings.TrimSpace(c.DisplayName())

	comp := batch{label: common.LabelComponent}
	comp.nodes = append(comp.nodes, store.Node{
		ID:    compID,
		Label: common.LabelComponent,
		Tags:  []string{c.Kind.Tag()},
		Props: map[string]any{
			"source_id":   c.ID,
			"document_id": docID,
			"kind":        string(c.Kind),
			"name":        name,
			"station":     station,
			"shape":       c.Shape,
			"ontology":    c.Ontology,
			"ordinal":     index,
		},
	})
	comp.edges = append(comp.edges, store.Edge{From: docID, Rel: common.RelHasComponent, To: compID})
	if station != "" {
		comp.edges = append(comp.edges, store.Edge{From: compID, Rel: common.RelAtStation, To: identity.StationID(station)})
	}
	if fieldID != "" {
		comp.edges = append(comp.edges, store.Edge{From: compID, Rel: common.RelPertainsTo, To: fieldID})
	}

	axes := batch{label: common.LabelAxis}
	for pos, a := range c.Axes {
		id := identity.AxisID(compID, pos, a.Name)
		labels := a.Labels
		if labels == nil {
			labels = []string{}
		}
		axes.nodes = append(axes.nodes, store.Node{
			ID:    id,
			Label: common.LabelAxis,
			Props: map[string]any{
				"component_id": compID,
				"name":         a.Name,
				"position":     pos,
				"labels":       labels,
			},
		})
		axes.edges = append(axes.edges, store.Edge{From: compID, Rel: common.RelHasAxis, To: id})
	}

	cells := batch{label: common.LabelCell}
	terms := batch{label: common.LabelTerm}
	for row, cols := range c.Data {
		for col, cell := range cols {
			cellID := identity.CellID(compID, row, col, cell.Resolved)
			props := map[string]any{
				"component_id": compID,
				"row":          row,
				"col":          col,
				"resolved":     cell.Resolved,
				"operation":    cell.Operation,
			}
			if cell.Notes != nil {
				props["notes"] = *cell.Notes
			}
			cells.nodes = append(cells.nodes, store.Node{ID: cellID, Label: common.LabelCell, Props: props})
			cells.edges = append(cells.edges, store.Edge{From: compID, Rel: common.RelHasCell, To: cellID})

			addTerm := func(typ common.TermType, ordinal int, value, rel string) {
				id := identity.TermID(cellID, typ, ordinal, value)
				terms.nodes = append(terms.nodes, store.Node{
					ID:    id,
					Label: common.LabelTerm,
					Props: map[string]any{
						"cell_id": cellID,
						"type":    string(typ),
						"ordinal": ordinal,
						"value":   value,
					},
				})
				terms.edges = append(terms.edges, store.Edge{From: cellID, Rel: rel, To: id})
			}
			for i, v := range cell.RawTerms {
				addTerm(common.TermRaw, i, v, common.RelContainsTerm)
			}
			for i, v := range cell.Intermediate {
				addTerm(common.TermIntermediate, i, v, common.RelContainsTerm)
			}
			addTerm(common.TermResolved, 0, cell.Resolved, common.RelResolvesTo)
		}
	}

	return []batch{comp, axes, cells, terms}
}

// DocumentID returns the id doc will be stored under.
func (p *IngestPlan) DocumentID() string { return p.documentID }

// Components maps each submitted component id to its node id.
func (p *IngestPlan) Components() map[string]string { return p.components }
