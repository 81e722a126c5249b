package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pipeflow/internal/api"
	"github.com/matzehuels/pipeflow/pkg/pipeline"
	"github.com/matzehuels/pipeflow/pkg/store"
)

// serveCommand creates the serve command for the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr       string
		configPath string
		noCache    bool
		noHistory  bool
		maxBody    int64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve solves and diagrams over HTTP",
		Long: `Serve solves and diagrams over HTTP.

Endpoints:
  GET  /healthz
  POST /api/v1/solve      network document in the body (JSON or YAML)
  POST /api/v1/render     ?format=svg|png|pdf|dot&solve=true
  GET  /api/v1/runs       ?network=...&limit=...
  GET  /api/v1/runs/{id}  run ID or unique prefix

Solve and render accept ?mode=full|remote, ?area=x,y;x,y;... and
?max_iter=N to override the configuration. Use --cache-url to share
results between servers through Redis.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), addr, configPath, noCache, noHistory, maxBody)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "solver configuration (default: ./pipeflow.toml if present)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record runs or serve the history endpoints")
	cmd.Flags().Int64Var(&maxBody, "max-body", api.DefaultMaxBody, "maximum network size in bytes")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, addr, configPath string, noCache, noHistory bool, maxBody int64) error {
	logger := loggerFromContext(ctx)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	backend, err := c.newCache(noCache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	runner := pipeline.NewRunner(backend, nil, logger)
	defer runner.Close()

	var db *store.Store
	if !noHistory {
		db, err = c.openStore()
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer db.Close()
	}

	srv := &api.Server{
		Runner:  runner,
		Config:  cfg,
		Store:   db,
		Logger:  logger,
		MaxBody: maxBody,
	}
	printInfo("Listening on %s", addr)
	return srv.ListenAndServe(ctx, addr)
}
