package graph

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/identity"
	"github.com/chirality-ai/valley/pkg/metrics"
	"github.com/chirality-ai/valley/pkg/store"
)

// ListComponents returns every persisted component ordered by id. The
// station_name of each entry is resolved through its AT_STATION edge.
func (g *GraphClient) ListComponents(ctx context.Context) ([]common.ComponentSummary, error) {
	return g.listComponents(ctx, "list_components", "")
}

// ListComponentsByKind is ListComponents restricted to one variant, matched
// on the component's secondary label.
func (g *GraphClient) ListComponentsByKind(ctx context.Context, kind common.Kind) ([]common.ComponentSummary, error) {
	if kind.Tag() == "" {
		return nil, common.Invalid("kind", "unknown component kind %q", kind)
	}
	return g.listComponents(ctx, "list_components_by_kind", kind.Tag())
}

func (g *GraphClient) listComponents(ctx context.Context, op, tag string) ([]common.ComponentSummary, error) {
	start := time.Now()
	var out []common.ComponentSummary
	err := g.gateway.WithSession(ctx, func(ctx context.Context, s store.Session) error {
		nodes, err := s.FindNodes(ctx, common.LabelComponent, nil)
		if err != nil {
			return err
		}
		out = make([]common.ComponentSummary, 0, len(nodes))
		for _, n := range nodes {
			if tag != "" && !n.HasTag(tag) {
				continue
			}
			summary, err := summarize(ctx, s, n)
			if err != nil {
				return err
			}
			out = append(out, summary)
		}
		return nil
	})
	metrics.Observe(op, start, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetComponent rebuilds one component, with its axes and cell grid, in the
// ingestion layout. Returns common.ErrNotFound when id is not a component.
func (g *GraphClient) GetComponent(ctx context.Context, id string) (common.ComponentDetail, error) {
	start := time.Now()
	var detail common.ComponentDetail
	err := g.gateway.WithSession(ctx, func(ctx context.Context, s store.Session) error {
		n, err := s.GetNode(ctx, id)
		if err != nil {
			return err
		}
		if n.Label != common.LabelComponent {
			return common.ErrNotFound
		}
		detail, err = loadComponent(ctx, s, n)
		return err
	})
	metrics.Observe("get_component", start, err)
	return detail, err
}

// LatestAtStation returns the component at station whose document has the
// newest created_at. Ties are broken by the greater component id. Returns
// common.ErrNotFound when the station holds no components.
func (g *GraphClient) LatestAtStation(ctx context.Context, station string) (common.ComponentDetail, error) {
	start := time.Now()
	name := strings.TrimSpace(station)
	if !slices.Contains(g.stations, name) {
		err := common.Invalid("station", "unknown station %q", station)
		metrics.Observe("latest_at_station", start, err)
		return common.ComponentDetail{}, err
	}

	var detail common.ComponentDetail
	err := g.gateway.WithSession(ctx, func(ctx context.Context, s store.Session) error {
		comps, err := s.In(ctx, identity.StationID(name), common.RelAtStation)
		if err != nil {
			return err
		}

		var (
			best      store.Node
			bestStamp string
			found     bool
		)
		for _, c := range comps {
			if c.Label != common.LabelComponent {
				continue
			}
			stamp, err := documentCreatedAt(ctx, s, c)
			if err != nil {
				return err
			}
			if !found || stamp > bestStamp || (stamp == bestStamp && c.ID > best.ID) {
				best, bestStamp, found = c, stamp, true
			}
		}
		if !found {
			return common.ErrNotFound
		}
		detail, err = loadComponent(ctx, s, best)
		return err
	})
	metrics.Observe("latest_at_station", start, err)
	return detail, err
}

// ListStations returns the station chain in position order with the number
// of components currently at each station.
func (g *GraphClient) ListStations(ctx context.Context) ([]common.StationSummary, error) {
	start := time.Now()
	var out []common.StationSummary
	err := g.gateway.WithSession(ctx, func(ctx context.Context, s store.Session) error {
		nodes, err := s.FindNodes(ctx, common.LabelStation, nil)
		if err != nil {
			return err
		}
		out = make([]common.StationSummary, 0, len(nodes))
		for _, n := range nodes {
			summary := common.StationSummary{Name: n.String("name"), Position: n.Int("position")}

			next, err := s.Out(ctx, n.ID, common.RelNext)
			if err != nil {
				return err
			}
			if len(next) > 0 {
				summary.Next = next[0].String("name")
			}

			comps, err := s.In(ctx, n.ID, common.RelAtStation)
			if err != nil {
				return err
			}
			summary.Components = int64(len(comps))
			out = append(out, summary)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
		return nil
	})
	metrics.Observe("list_stations", start, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func summarize(ctx context.Context, s store.Session, n store.Node) (common.ComponentSummary, error) {
	summary := common.ComponentSummary{
		ID:      n.ID,
		Name:    n.String("name"),
		Kind:    common.Kind(n.String("kind")),
		Station: n.String("station"),
		Shape:   n.Ints("shape"),
	}
	stations, err := s.Out(ctx, n.ID, common.RelAtStation)
	if err != nil {
		return common.ComponentSummary{}, err
	}
	if len(stations) > 0 {
		summary.StationName = stations[0].String("name")
	}
	return summary, nil
}

func documentCreatedAt(ctx context.Context, s store.Session, component store.Node) (string, error) {
	docs, err := s.In(ctx, component.ID, common.RelHasComponent)
	if err != nil {
		return "", err
	}
	stamp := ""
	for _, d := range docs {
		if v := d.String("created_at"); v > stamp {
			stamp = v
		}
	}
	return stamp, nil
}

func loadComponent(ctx context.Context, s store.Session, n store.Node) (common.ComponentDetail, error) {
	summary, err := summarize(ctx, s, n)
	if err != nil {
		return common.ComponentDetail{}, err
	}
	detail := common.ComponentDetail{
		ComponentSummary: summary,
		DocumentID:       n.String("document_id"),
		SourceID:         n.String("source_id"),
		Ontology:         n.Map("ontology"),
		Axes:             []common.Axis{},
	}

	axisNodes, err := s.Out(ctx, n.ID, common.RelHasAxis)
	if err != nil {
		return common.ComponentDetail{}, err
	}
	sort.Slice(axisNodes, func(i, j int) bool { return axisNodes[i].Int("position") < axisNodes[j].Int("position") })
	for _, a := range axisNodes {
		detail.Axes = append(detail.Axes, common.Axis{Name: a.String("name"), Labels: a.Strings("labels")})
	}

	rows, cols := common.Component{Kind: summary.Kind, Shape: summary.Shape}.GridDims()
	detail.Data = make([][]common.Cell, rows)
	for r := range detail.Data {
		detail.Data[r] = make([]common.Cell, cols)
	}

	cellNodes, err := s.Out(ctx, n.ID, common.RelHasCell)
	if err != nil {
		return common.ComponentDetail{}, err
	}
	for _, c := range cellNodes {
		row, col := c.Int("row"), c.Int("col")
		if row < 0 || row >= rows || col < 0 || col >= cols {
			continue
		}
		cell, err := loadCell(ctx, s, c)
		if err != nil {
			return common.ComponentDetail{}, err
		}
		detail.Data[row][col] = cell
	}
	return detail, nil
}

func loadCell(ctx context.Context, s store.Session, c store.Node) (common.Cell, error) {
	cell := common.Cell{
		Resolved:     c.String("resolved"),
		Operation:    c.String("operation"),
		RawTerms:     []string{},
		Intermediate: []string{},
	}
	if _, ok := c.Props["notes"]; ok {
		notes := c.String("notes")
		cell.Notes = &notes
	}

	terms, err := s.Out(ctx, c.ID, common.RelContainsTerm)
	if err != nil {
		return common.Cell{}, err
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Int("ordinal") < terms[j].Int("ordinal") })
	for _, t := range terms {
		switch common.TermType(t.String("type")) {
		case common.TermRaw:
			cell.RawTerms = append(cell.RawTerms, t.String("value"))
		case common.TermIntermediate:
			cell.Intermediate = append(cell.Intermediate, t.String("value"))
		}
	}

	resolved, err := s.Out(ctx, c.ID, common.RelResolvesTo)
	if err != nil {
		return common.Cell{}, err
	}
	if len(resolved) > 0 {
		cell.Resolved = resolved[0].String("value")
	}
	return cell, nil
}

// IsNotFound reports whether err means the requested node does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
