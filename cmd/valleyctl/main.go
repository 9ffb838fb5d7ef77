// Package main provides valleyctl, the administration tool for the Chirality
// graph. It talks to the graph store directly rather than through the HTTP
// API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/chirality-ai/valley/internal/storage"
	"github.com/chirality-ai/valley/internal/util"
	"github.com/chirality-ai/valley/pkg/graph"
	"github.com/chirality-ai/valley/pkg/logger"
	"github.com/chirality-ai/valley/pkg/logger/console"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

// cli carries what every command needs. Tests replace openGraph with a
// memory-backed client.
type cli struct {
	in        io.Reader
	out       io.Writer
	output    string
	debug     bool
	openGraph func(ctx context.Context) (*graph.GraphClient, error)
}

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{in: os.Stdin, out: os.Stdout, openGraph: openGraphFromEnv}
	if err := c.rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openGraphFromEnv(ctx context.Context) (*graph.GraphClient, error) {
	gateway, _, err := storage.OpenGraphStore(ctx)
	if err != nil {
		return nil, err
	}
	return graph.NewGraphClient(graph.NewGraphClientParams{Gateway: gateway})
}

func (c *cli) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "valleyctl",
		Short:         "Administer the Chirality graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch c.output {
			case outputTable, outputJSON, outputYAML:
			default:
				return fmt.Errorf("unknown output format %q", c.output)
			}
			logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
				Debug:  c.debug || util.GetEnvBool("DEBUG", false),
				Format: util.GetEnv("LOG_FORMAT"),
				Output: cmd.ErrOrStderr(),
			}))
			return nil
		},
	}
	cmd.SetIn(c.in)
	cmd.SetOut(c.out)

	cmd.PersistentFlags().StringVarP(&c.output, "output", "o", outputTable, "Output format (table, json, yaml)")
	cmd.PersistentFlags().BoolVar(&c.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		c.listCmd(),
		c.showCmd(),
		c.stationsCmd(),
		c.deleteCmd(),
		c.deleteStationCmd(),
		c.ingestCmd(),
		c.bootstrapCmd(),
		c.migrateCmd(),
	)
	return cmd
}

// withGraph opens the graph for the duration of fn.
func (c *cli) withGraph(ctx context.Context, fn func(g *graph.GraphClient) error) error {
	g, err := c.openGraph(ctx)
	if err != nil {
		return err
	}
	defer g.Close()
	return fn(g)
}
