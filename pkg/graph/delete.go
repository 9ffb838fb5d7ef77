package graph

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/identity"
	"github.com/chirality-ai/valley/pkg/logger"
	"github.com/chirality-ai/valley/pkg/metrics"
	"github.com/chirality-ai/valley/pkg/store"
)

// DeleteComponent removes the component and every Axis, Cell and Term it
// owns in one transaction. Shared nodes (Station, Valley, KnowledgeField,
// Document) are kept. It returns 1 when the component was deleted and 0 when
// it did not exist.
func (g *GraphClient) DeleteComponent(ctx context.Context, componentID string) (int64, error) {
	start := time.Now()
	var deleted int64
	err := g.gateway.WithTransaction(ctx, func(ctx context.Context, s store.Session) error {
		deleted = 0
		n, err := s.GetNode(ctx, componentID)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if n.Label != common.LabelComponent {
			return nil
		}
		deleted, err = cascadeDelete(ctx, s, []string{n.ID})
		return err
	})
	metrics.Observe("delete_component", start, err)
	if err != nil {
		logger.Error("[Graph][Delete] Failed to delete component", "component", componentID, "err", err)
		return 0, err
	}

	metrics.ComponentsDeleted.Add(float64(deleted))
	logger.Info("[Graph][Delete] Component delete finished", "component", componentID, "deleted", deleted)
	return deleted, nil
}

// DeleteAllAtStation removes every component linked AT_STATION to the named
// station, with their dependents, in one transaction. The station itself is
// kept. It returns the number of components deleted.
func (g *GraphClient) DeleteAllAtStation(ctx context.Context, station string) (int64, error) {
	start := time.Now()
	name := strings.TrimSpace(station)
	if !slices.Contains(g.stations, name) {
		err := common.Invalid("station", "unknown station %q", station)
		metrics.Observe("delete_station", start, err)
		return 0, err
	}

	var deleted int64
	err := g.gateway.WithTransaction(ctx, func(ctx context.Context, s store.Session) error {
		deleted = 0
		comps, err := s.In(ctx, identity.StationID(name), common.RelAtStation)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(comps))
		for _, c := range comps {
			if c.Label == common.LabelComponent {
				ids = append(ids, c.ID)
			}
		}
		deleted, err = cascadeDelete(ctx, s, ids)
		return err
	})
	metrics.Observe("delete_station", start, err)
	if err != nil {
		logger.Error("[Graph][Delete] Failed to delete station components", "station", name, "err", err)
		return 0, err
	}

	metrics.ComponentsDeleted.Add(float64(deleted))
	logger.Info("[Graph][Delete] Station components deleted", "station", name, "deleted", deleted)
	return deleted, nil
}

// cascadeDelete deletes the given components with their dependents, terms
// first, then cells, then axes, then the components. Returns the number of
// components removed.
func cascadeDelete(ctx context.Context, s store.Session, componentIDs []string) (int64, error) {
	if len(componentIDs) == 0 {
		return 0, nil
	}

	var terms, cells, axes []string
	for _, id := range componentIDs {
		cellNodes, err := s.Out(ctx, id, common.RelHasCell)
		if err != nil {
			return 0, err
		}
		for _, cell := range cellNodes {
			cells = append(cells, cell.ID)
			termNodes, err := s.Out(ctx, cell.ID, common.RelContainsTerm, common.RelResolvesTo)
			if err != nil {
				return 0, err
			}
			for _, t := range termNodes {
				terms = append(terms, t.ID)
			}
		}

		axisNodes, err := s.Out(ctx, id, common.RelHasAxis)
		if err != nil {
			return 0, err
		}
		for _, a := range axisNodes {
			axes = append(axes, a.ID)
		}
	}

	for _, ids := range [][]string{terms, cells, axes} {
		if _, err := s.DetachDelete(ctx, store.DedupeStrings(ids)...); err != nil {
			return 0, err
		}
	}
	return s.DetachDelete(ctx, store.DedupeStrings(componentIDs)...)
}
