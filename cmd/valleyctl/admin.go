package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chirality-ai/valley/internal/storage"
	"github.com/chirality-ai/valley/internal/util"
	"github.com/chirality-ai/valley/pkg/graph"
	"github.com/chirality-ai/valley/pkg/loader"
	ioloader "github.com/chirality-ai/valley/pkg/loader/io"
	s3loader "github.com/chirality-ai/valley/pkg/loader/s3"
	pgstore "github.com/chirality-ai/valley/pkg/store/pgx"

	"github.com/spf13/cobra"
)

type deleteResult struct {
	Deleted int64 `json:"deleted_components"`
}

type ingestRow struct {
	Source     string            `json:"source"`
	DocumentID string            `json:"documentId"`
	Components map[string]string `json:"components"`
	Created    bool              `json:"created"`
}

func (c *cli) deleteCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete one component with its axes, cells and terms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return errors.New("--id is required")
			}
			return c.withGraph(cmd.Context(), func(g *graph.GraphClient) error {
				deleted, err := g.DeleteComponent(cmd.Context(), id)
				if err != nil {
					return err
				}
				return c.renderDeleted(cmd, deleted)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Component id")
	return cmd
}

func (c *cli) deleteStationCmd() *cobra.Command {
	var (
		station string
		yes     bool
	)
	cmd := &cobra.Command{
		Use:   "delete-station",
		Short: "Delete every component at a station",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if station == "" {
				return errors.New("--station is required")
			}
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(),
					fmt.Sprintf("Delete all components at station %q?", station))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.ErrOrStderr(), "Aborted")
					return nil
				}
			}
			return c.withGraph(cmd.Context(), func(g *graph.GraphClient) error {
				deleted, err := g.DeleteAllAtStation(cmd.Context(), station)
				if err != nil {
					return err
				}
				return c.renderDeleted(cmd, deleted)
			})
		},
	}
	cmd.Flags().StringVar(&station, "station", "", "Station name")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func (c *cli) renderDeleted(cmd *cobra.Command, deleted int64) error {
	return render(cmd.OutOrStdout(), c.output, deleteResult{Deleted: deleted},
		[]string{"DELETED COMPONENTS"}, [][]string{{strconv.FormatInt(deleted, 10)}})
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (c *cli) ingestCmd() *cobra.Command {
	var (
		repair   bool
		s3Prefix string
	)
	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Ingest documents from local files or the document archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var sources []loader.DocumentSource
			if len(args) > 0 {
				local := ioloader.NewIODocumentLoader()
				for _, path := range args {
					sources = append(sources, loader.NewDocumentSource(path, local))
				}
			}
			if s3Prefix != "" {
				client := storage.NewS3Client(ctx)
				if client == nil {
					return errors.New("--s3-prefix needs AWS_BUCKET to be configured")
				}
				keys, err := storage.ListFilesWithPrefix(ctx, client, s3Prefix)
				if err != nil {
					return err
				}
				remote := s3loader.NewS3DocumentLoaderWithClient(storage.Bucket(), client)
				for _, key := range keys {
					sources = append(sources, loader.NewDocumentSource(key, remote))
				}
			}
			if len(sources) == 0 {
				return errors.New("no documents given")
			}

			return c.withGraph(ctx, func(g *graph.GraphClient) error {
				results := make([]ingestRow, 0, len(sources))
				for _, src := range sources {
					docs, err := src.Load(ctx, repair)
					if err != nil {
						return fmt.Errorf("%s: %w", src.Path, err)
					}
					for _, doc := range docs {
						res, err := g.Ingest(ctx, doc)
						if err != nil {
							return fmt.Errorf("%s: %w", src.Path, err)
						}
						results = append(results, ingestRow{
							Source:     src.Path,
							DocumentID: res.DocumentID,
							Components: res.Components,
							Created:    res.Created,
						})
					}
				}

				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, []string{r.Source, r.DocumentID, strconv.Itoa(len(r.Components)), strconv.FormatBool(r.Created)})
				}
				return render(cmd.OutOrStdout(), c.output, results,
					[]string{"SOURCE", "DOCUMENT", "COMPONENTS", "CREATED"}, rows)
			})
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "Repair malformed JSON before decoding")
	cmd.Flags().StringVar(&s3Prefix, "s3-prefix", "", "Also ingest every archived object under this prefix")
	return cmd
}

func (c *cli) bootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the valley and station chain if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withGraph(cmd.Context(), func(g *graph.GraphClient) error {
				if err := g.EnsurePipeline(cmd.Context(), g.Stations()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Station pipeline ready (%d stations)\n", len(g.Stations()))
				return nil
			})
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			databaseURL := util.GetEnv("DATABASE_URL")
			if databaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			if err := pgstore.Migrate(databaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema up to date")
			return nil
		},
	}
}
