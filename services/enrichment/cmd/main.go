package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/master"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/mcpserver"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/processor"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/recommender"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Printf("enrichment: %v", err)
	}
	os.Exit(errors.ExitCode(err))
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "enrichment",
		Short:         "Enrich scraped AI job listings into the published data set",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(), newServeCommand(), newSimilarCommand(), newMCPCommand(), newExportCommand())
	return root
}

// withApp starts an fx app populated with the requested values, calls fn and
// stops the app again.
func withApp(ctx context.Context, fn func(ctx context.Context) error, targets ...interface{}) error {
	app := fx.New(baseOptions(), fx.Populate(targets...))
	if err := app.Start(ctx); err != nil {
		return err
	}

	runErr := fn(ctx)

	if err := app.Stop(context.Background()); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and print the run summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var pipeline *processor.Pipeline
			return withApp(cmd.Context(), func(ctx context.Context) error {
				report, err := pipeline.Run(ctx)
				if report != nil {
					if encErr := printJSON(cmd, report.RunSummary); encErr != nil && err == nil {
						err = encErr
					}
				}
				return err
			}, &pipeline)
		},
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline on a schedule and on NATS triggers until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := fx.New(baseOptions(), fx.Invoke(registerServe))
			if err := app.Start(cmd.Context()); err != nil {
				return err
			}

			select {
			case <-cmd.Context().Done():
			case <-app.Done():
			}

			return app.Stop(context.Background())
		},
	}
}

func newSimilarCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "similar <slug>",
		Short: "Suggest live jobs for an expired job page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var snapshot *mcpserver.Snapshot
			return withApp(cmd.Context(), func(ctx context.Context) error {
				live, err := snapshot.LiveJobs(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, recommender.Recommend(args[0], live, limit))
			}, &snapshot)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "number of suggestions")
	return cmd
}

func newMCPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the job data set as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var server *mcpserver.Server
			return withApp(cmd.Context(), func(context.Context) error {
				return server.ServeStdio()
			}, &server)
		},
	}
}

func newExportCommand() *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the master table as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var store master.Store
			return withApp(cmd.Context(), func(ctx context.Context) error {
				records, err := exportRecords(ctx, store, since)
				if err != nil {
					return err
				}
				return printJSON(cmd, records)
			}, &store)
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only records imported on or after this YYYY-MM-DD date")
	return cmd
}

// exportRecords reads the master table, keeping records imported on or after
// since when it is set.
func exportRecords(ctx context.Context, store master.Store, since string) ([]models.JobRecord, error) {
	records, err := store.Records(ctx)
	if err != nil {
		return nil, err
	}
	if since == "" {
		return records, nil
	}
	if _, err := time.Parse(time.DateOnly, since); err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("--since %q is not a YYYY-MM-DD date", since), err)
	}

	kept := make([]models.JobRecord, 0, len(records))
	for _, r := range records {
		if r.ImportDate >= since {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
