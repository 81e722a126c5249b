package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pipeflow/pkg/cache"
	"github.com/matzehuels/pipeflow/pkg/config"
	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/netio"
	"github.com/matzehuels/pipeflow/pkg/observability"
	"github.com/matzehuels/pipeflow/pkg/pipeline"
)

// solveOpts holds the command-line flags shared by solve and render --solve.
type solveOpts struct {
	configPath string
	mode       string
	area       string
	maxIter    int
	noCache    bool
	refresh    bool
	noHistory  bool
}

func (o *solveOpts) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.configPath, "config", "c", "", "solver configuration (default: ./pipeflow.toml if present)")
	cmd.Flags().StringVar(&o.mode, "mode", "", "flow mode: full or remote (overrides config)")
	cmd.Flags().StringVar(&o.area, "area", "", `remote area polygon as "x,y;x,y;..." in metres`)
	cmd.Flags().IntVar(&o.maxIter, "max-iter", 0, "maximum calculation passes (overrides config)")
	cmd.Flags().BoolVar(&o.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&o.refresh, "refresh", false, "recompute even if a cached result exists")
	cmd.Flags().BoolVar(&o.noHistory, "no-history", false, "do not record the run in the history database")
}

// config loads the configuration file and applies flag overrides.
func (o *solveOpts) config() (*config.Config, error) {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	area, err := config.ParseArea(o.area)
	if err != nil {
		return nil, err
	}
	cfg.OverrideFlow(o.mode, area)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// solveCommand creates the solve command.
func (c *CLI) solveCommand() *cobra.Command {
	var (
		opts    solveOpts
		output  string
		asJSON  bool
		strict  bool
		noTable bool
	)

	cmd := &cobra.Command{
		Use:   "solve [network.yaml]",
		Short: "Solve flows and pressures in a fitting network",
		Long: `Solve flows and pressures in a fitting network.

Each calculation pass distributes outlet demands through the tree, computes
friction losses and static pressures from the supply outward, and corrects
every outlet demand against its K-factor. Passes repeat until the demands
converge or --max-iter is reached.

Results are cached by network content and configuration, and every run is
recorded in the history database (see 'pipeflow history').`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSolve(cmd.Context(), args[0], &opts, solveOutput{
				path:    output,
				json:    asJSON,
				strict:  strict,
				noTable: noTable,
			})
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the solved network (.yaml or .json)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail if the network reports problems or does not converge")
	cmd.Flags().BoolVar(&noTable, "no-table", false, "omit the per-outlet table")

	return cmd
}

type solveOutput struct {
	path    string
	json    bool
	strict  bool
	noTable bool
}

func (c *CLI) runSolve(ctx context.Context, input string, opts *solveOpts, out solveOutput) error {
	tree, res, err := c.solveFile(ctx, input, opts, !out.json)
	if err != nil {
		return err
	}

	if out.path != "" {
		if err := netio.Export(tree, out.path); err != nil {
			return fmt.Errorf("write %s: %w", out.path, err)
		}
	}

	if out.json {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printSolveResult(tree, res, !out.noTable)
		if out.path != "" {
			printFile(out.path)
		}
		if len(res.Errors) > 0 {
			printNewline()
			printNextStep("Draw the problem components", fmt.Sprintf("%s render --solve %s", appName, input))
		}
	}

	if out.strict {
		if len(res.Errors) > 0 {
			return errors.New(errors.ErrCodeInvalidInput, "network reported %d problem(s)", len(res.Errors))
		}
		if !res.Converged {
			return errors.New(errors.ErrCodeOutOfRange, "did not converge in %d passes", res.Iterations)
		}
	}
	return nil
}

// solveFile imports, solves and records one network file.
func (c *CLI) solveFile(ctx context.Context, input string, opts *solveOpts, interactive bool) (*fitting.Tree, *pipeline.Result, error) {
	logger := loggerFromContext(ctx)
	prog := newProgress(logger)

	tree, data, err := netio.ImportBytes(input)
	if err != nil {
		return nil, nil, fmt.Errorf("load network %s: %w", input, err)
	}
	cfg, err := opts.config()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger.Debug("loaded network", "components", len(tree.Flatten()), "mode", cfg.Flow.Mode)

	runner, err := c.newRunner(ctx, opts.noCache)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	var spinner *Spinner
	if interactive {
		spinner = newSpinner(ctx, "Solving")
		observability.SetSolverHooks(spinner)
		defer observability.Reset()
		spinner.Start()
	}

	hash := cache.Hash(data)
	res, err := runner.Solve(ctx, tree, pipeline.Options{
		Config:        cfg,
		MaxIterations: opts.maxIter,
		NetworkHash:   hash,
		Refresh:       opts.refresh,
		Logger:        logger,
	})
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("solve: %w", err)
	}
	prog.done(fmt.Sprintf("Solved %d components", res.Stats.Components))

	if !opts.noHistory {
		if err := c.record(ctx, input, hash, res); err != nil {
			logger.Warn("run not recorded", "error", err)
		}
	}
	return tree, res, nil
}

func (c *CLI) record(ctx context.Context, input, hash string, res *pipeline.Result) error {
	db, err := c.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	name := input
	if abs, err := filepath.Abs(input); err == nil {
		name = abs
	}
	return db.RecordResult(ctx, name, hash, res)
}

// printSolveResult prints the summary, outlet table and problems of a solve.
func printSolveResult(tree *fitting.Tree, res *pipeline.Result, withTable bool) {
	switch {
	case res.Iterations == 0:
		printError("Network was not solved")
	case res.Converged:
		printSuccess("Converged after %d passes", res.Iterations)
	default:
		printWarning("Stopped after %d passes without converging", res.Iterations)
	}
	printStats(res.CacheHit,
		fmt.Sprintf("%d components", res.Stats.Components),
		fmt.Sprintf("%d outlets", res.Stats.Leaves),
		fmt.Sprintf("run %s", shortID(res.RunID)))

	printNewline()
	printKeyValue("Supply flow", fmtFlow(res.Stats.TrunkFlow))
	printKeyValue("Supply pressure", fmtPressure(res.Stats.TrunkPressure))
	printKeyValue("Lowest outlet", fmtPressure(res.Stats.MinLeafPressure))

	if withTable && len(res.Snapshot.Leaves) > 0 {
		printNewline()
		printTable([]string{"Outlet", "Demand", "Pressure"}, outletRows(tree))
	}

	if len(res.Errors) > 0 {
		printNewline()
		printWarning("%d problem(s) reported", len(res.Errors))
		for _, fe := range res.Errors {
			printDetail("[%s] %s", fe.Code, fe.Error())
		}
	}
}

// outletRows lists every leaf with its demand and static pressure.
func outletRows(tree *fitting.Tree) [][]string {
	var rows [][]string
	for _, term := range tree.Terminals() {
		leaf, ok := term.Leaf()
		if !ok {
			continue
		}
		var p *float64
		if v, ok := term.TrunkPort().StaticPressure(); ok {
			p = &v
		}
		rows = append(rows, []string{term.ID, fmtFlow(leaf.Flow), fmtPressure(p)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	return rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
