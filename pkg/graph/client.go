package graph

import (
	"errors"
	"slices"

	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/store"

	"golang.org/x/sync/singleflight"
)

// GraphClient persists Chirality documents into the property graph and
// answers the structural queries over it. All writes go through the
// configured Gateway; a GraphClient holds no graph state of its own.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	gateway  store.Gateway
	stations []string
	boot     singleflight.Group
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// Gateway is required. Stations defaults to common.Stations and is the
// catalog EnsurePipeline accepts.
type NewGraphClientParams struct {
	Gateway  store.Gateway
	Stations []string
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		Gateway: memory.New(),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	if params.Gateway == nil {
		return nil, errors.New("graph: gateway is required")
	}
	stations := params.Stations
	if len(stations) == 0 {
		stations = common.Stations
	}
	return &GraphClient{
		gateway:  params.Gateway,
		stations: slices.Clone(stations),
	}, nil
}

// Stations returns the station catalog in chain order.
func (g *GraphClient) Stations() []string {
	return slices.Clone(g.stations)
}

// Close releases the underlying gateway.
func (g *GraphClient) Close() {
	g.gateway.Close()
}
