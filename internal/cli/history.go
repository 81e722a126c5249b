package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/pipeflow/pkg/store"
)

// historyCommand creates the history command and its subcommands.
func (c *CLI) historyCommand() *cobra.Command {
	var (
		network     string
		limit       int
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded solves",
		Long: `List recorded solves, newest first.

Every 'pipeflow solve' records its summary, reported problems and outlet
demands in a SQLite database. Use 'history show <run>' for one run, or -i to
browse runs interactively.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runHistory(cmd.Context(), network, limit, interactive)
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "only runs of this network file")
	cmd.Flags().IntVarP(&limit, "limit", "l", store.DefaultLimit, "maximum runs to list")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "browse runs interactively")

	cmd.AddCommand(c.historyShowCommand())
	cmd.AddCommand(c.historyPruneCommand())
	return cmd
}

func (c *CLI) runHistory(ctx context.Context, network string, limit int, interactive bool) error {
	db, err := c.openStore()
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer db.Close()

	if network != "" {
		if abs, err := filepath.Abs(network); err == nil {
			network = abs
		}
	}
	runs, err := db.List(ctx, network, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		printInfo("No runs recorded")
		return nil
	}

	if !interactive {
		printTable([]string{"Run", "Network", "When", "Passes", "Converged", "Problems", "Supply flow"}, runRows(runs))
		return nil
	}

	final, err := tea.NewProgram(NewRunListModel(runs)).Run()
	if err != nil {
		return err
	}
	m, ok := final.(RunListModel)
	if !ok || m.Selected == nil {
		printDetail("No selection made")
		return nil
	}
	return showRun(ctx, db, m.Selected.ID)
}

func runRows(runs []store.Run) [][]string {
	rows := make([][]string, len(runs))
	for i, r := range runs {
		converged := "yes"
		if !r.Converged {
			converged = "no"
		}
		rows[i] = []string{
			shortID(r.ID),
			filepath.Base(r.Network),
			formatRelativeTime(r.CreatedAt),
			strconv.Itoa(r.Iterations),
			converged,
			strconv.Itoa(r.ErrorCount),
			fmtFlow(r.TrunkFlow),
		}
	}
	return rows
}

// historyShowCommand creates the "history show" subcommand.
func (c *CLI) historyShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run>",
		Short: "Show one recorded solve",
		Long:  "Show one recorded solve. The run may be given by its full ID or an unambiguous prefix.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openStore()
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer db.Close()
			return showRun(cmd.Context(), db, args[0])
		},
	}
}

func showRun(ctx context.Context, db *store.Store, id string) error {
	run, err := db.Find(ctx, id)
	if err != nil {
		return err
	}
	problems, err := db.Errors(ctx, run.ID)
	if err != nil {
		return err
	}
	flows, err := db.LeafFlows(ctx, run.ID)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, StyleTitle.Render("Run "+run.ID))
	printKeyValue("Network", run.Network)
	printKeyValue("When", run.CreatedAt.Format("2006-01-02 15:04:05"))
	printKeyValue("Passes", strconv.Itoa(run.Iterations))
	printKeyValue("Converged", strconv.FormatBool(run.Converged))
	printKeyValue("Duration", run.Duration.String())
	printKeyValue("Supply flow", fmtFlow(run.TrunkFlow))
	printKeyValue("Supply pressure", fmtPressure(run.TrunkPressure))
	printKeyValue("Lowest outlet", fmtPressure(run.MinLeafPressure))

	if len(flows) > 0 {
		printNewline()
		rows := make([][]string, len(flows))
		for i, f := range flows {
			rows[i] = []string{f.Leaf, fmtFlow(f.Flow)}
		}
		printTable([]string{"Outlet", "Demand"}, rows)
	}
	if len(problems) > 0 {
		printNewline()
		printWarning("%d problem(s) reported", len(problems))
		for _, p := range problems {
			if p.Component != "" {
				printDetail("[%s] %s: %s", p.Code, p.Component, p.Message)
			} else {
				printDetail("[%s] %s", p.Code, p.Message)
			}
		}
	}
	return nil
}

// historyPruneCommand creates the "history prune" subcommand.
func (c *CLI) historyPruneCommand() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openStore()
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer db.Close()

			n, err := db.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			printSuccess("Removed %d run(s)", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 100, "number of newest runs to keep")
	return cmd
}
