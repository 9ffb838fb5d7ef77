package graph

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/identity"
	"github.com/chirality-ai/valley/pkg/logger"
	"github.com/chirality-ai/valley/pkg/metrics"
	"github.com/chirality-ai/valley/pkg/store"
)

// EnsurePipeline merges the Valley, its stations and the NEXT chain between
// them. It is idempotent: repeated calls leave exactly one Valley, one node
// per station and len(names)-1 NEXT edges.
//
// names must equal the client's station catalog. Concurrent callers share a
// single run, which is detached from any one caller's cancellation; a caller
// whose ctx ends stops waiting without failing the others.
func (g *GraphClient) EnsurePipeline(ctx context.Context, names []string) error {
	if !slices.Equal(names, g.stations) {
		return common.Invalid("stations", "station list does not match the pipeline catalog")
	}

	ch := g.boot.DoChan("pipeline", func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pipelineTimeout)
		defer cancel()
		start := time.Now()
		err := g.ensurePipeline(runCtx, names)
		metrics.Observe("ensure_pipeline", start, err)
		return nil, err
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pipelineTimeout bounds a shared bootstrap run.
const pipelineTimeout = time.Minute

func (g *GraphClient) ensurePipeline(ctx context.Context, names []string) error {
	valleyID := identity.ValleyID()

	nodes := make([]store.Node, 0, len(names)+1)
	edges := make([]store.Edge, 0, 2*len(names))
	nodes = append(nodes, store.Node{
		ID:    valleyID,
		Label: common.LabelValley,
		Props: map[string]any{"name": common.ValleyName},
	})
	for i, name := range names {
		id := identity.StationID(name)
		nodes = append(nodes, store.Node{
			ID:    id,
			Label: common.LabelStation,
			Props: map[string]any{"name": name, "position": i},
		})
		edges = append(edges, store.Edge{From: valleyID, Rel: common.RelHasStation, To: id})
		if i > 0 {
			edges = append(edges, store.Edge{From: identity.StationID(names[i-1]), Rel: common.RelNext, To: id})
		}
	}

	return g.gateway.WithTransaction(ctx, func(ctx context.Context, s store.Session) error {
		created, err := s.MergeNodes(ctx, nodes)
		if err != nil {
			return err
		}
		if _, err := s.MergeEdges(ctx, edges); err != nil {
			return err
		}

		count, err := s.CountNodes(ctx, common.LabelStation)
		if err != nil {
			return err
		}
		if count != int64(len(names)) {
			return &common.StoreError{
				Op:  "ensure pipeline",
				Err: fmt.Errorf("expected %d stations, store holds %d", len(names), count),
			}
		}

		if created > 0 {
			logger.Info("[Graph][Pipeline] Bootstrapped station chain", "created", created, "stations", len(names))
		}
		return nil
	})
}
