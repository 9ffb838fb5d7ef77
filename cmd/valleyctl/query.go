package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chirality-ai/valley/pkg/common"
	"github.com/chirality-ai/valley/pkg/graph"

	"github.com/spf13/cobra"
)

func (c *cli) listCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every component with its station",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter common.Kind
			if kind != "" {
				k, err := common.ParseKind(kind)
				if err != nil {
					return err
				}
				filter = k
			}
			return c.withGraph(cmd.Context(), func(g *graph.GraphClient) error {
				var (
					components []common.ComponentSummary
					err        error
				)
				if filter != "" {
					components, err = g.ListComponentsByKind(cmd.Context(), filter)
				} else {
					components, err = g.ListComponents(cmd.Context())
				}
				if err != nil {
					return err
				}
				if components == nil {
					components = []common.ComponentSummary{}
				}

				rows := make([][]string, 0, len(components))
				for _, comp := range components {
					rows = append(rows, []string{comp.ID, comp.Name, string(comp.Kind), comp.StationName, formatShape(comp.Shape)})
				}
				return render(cmd.OutOrStdout(), c.output, components,
					[]string{"ID", "NAME", "KIND", "STATION", "SHAPE"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only list components of this kind (matrix, tensor or array)")
	return cmd
}

func (c *cli) showCmd() *cobra.Command {
	var id, station string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show one component with its cell grid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (id == "") == (station == "") {
				return errors.New("exactly one of --id or --station is required")
			}
			return c.withGraph(cmd.Context(), func(g *graph.GraphClient) error {
				var (
					detail common.ComponentDetail
					err    error
				)
				if id != "" {
					detail, err = g.GetComponent(cmd.Context(), id)
				} else {
					detail, err = g.LatestAtStation(cmd.Context(), station)
				}
				if graph.IsNotFound(err) {
					return fmt.Errorf("no component found")
				}
				if err != nil {
					return err
				}

				rows := make([][]string, 0)
				for r, row := range detail.Data {
					for col, cell := range row {
						rows = append(rows, []string{
							strconv.Itoa(r), strconv.Itoa(col), cell.Resolved, cell.Operation,
							strings.Join(cell.RawTerms, ", "), strings.Join(cell.Intermediate, ", "),
						})
					}
				}
				if c.output == outputTable {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s @ %s  shape %s\n",
						detail.ID, detail.Name, detail.Kind, detail.StationName, formatShape(detail.Shape))
				}
				return render(cmd.OutOrStdout(), c.output, detail,
					[]string{"ROW", "COL", "RESOLVED", "OPERATION", "RAW TERMS", "INTERMEDIATE"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Component id")
	cmd.Flags().StringVar(&station, "station", "", "Show the newest component at this station")
	return cmd
}

func (c *cli) stationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stations",
		Short: "List the station chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withGraph(cmd.Context(), func(g *graph.GraphClient) error {
				stations, err := g.ListStations(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(stations))
				for _, s := range stations {
					rows = append(rows, []string{strconv.Itoa(s.Position), s.Name, s.Next, strconv.FormatInt(s.Components, 10)})
				}
				return render(cmd.OutOrStdout(), c.output, stations,
					[]string{"POS", "STATION", "NEXT", "COMPONENTS"}, rows)
			})
		},
	}
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, "x") + "]"
}
