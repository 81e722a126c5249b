package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pipeflow/pkg/errors"
	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/netio"
)

// checkCommand creates the check command for validating a network without
// solving it.
func (c *CLI) checkCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check [network.yaml]",
		Short: "Check a network and configuration for problems",
		Long: `Check a network and configuration for problems.

The check reports trunk problems, components that are not connected to the
supply, and fed terminals without an outlet classification. The
configuration is loaded and validated as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), args[0], configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "solver configuration (default: ./pipeflow.toml if present)")
	return cmd
}

func runCheck(ctx context.Context, input, configPath string) error {
	logger := loggerFromContext(ctx)

	tree, err := netio.Import(input)
	if err != nil {
		return fmt.Errorf("load network %s: %w", input, err)
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Debug("config", "mode", cfg.Flow.Mode, "c_factor", cfg.Pressure.CFactor)

	counts := countKinds(tree)
	printInfo("%s", input)
	printStats(false,
		fmt.Sprintf("%d components", len(tree.Flatten())),
		fmt.Sprintf("%d segments", counts["segment"]),
		fmt.Sprintf("%d fittings", counts["fitting"]),
		fmt.Sprintf("%d outlets", counts["outlet"]))

	problems := tree.Validate()
	if len(problems) == 0 {
		printSuccess("No problems found")
		return nil
	}
	printWarning("%d problem(s) found", len(problems))
	for _, fe := range problems {
		printDetail("[%s] %s", fe.Code, fe.Error())
	}
	return errors.New(errors.ErrCodeInvalidInput, "%s has %d problem(s)", input, len(problems))
}

// countKinds tallies the flattened components by broad kind.
func countKinds(tree *fitting.Tree) map[string]int {
	counts := make(map[string]int)
	for _, comp := range tree.Flatten() {
		switch comp := comp.(type) {
		case *fitting.StraightSegment:
			counts["segment"]++
		case *fitting.Terminal:
			if _, ok := comp.Leaf(); ok {
				counts["outlet"]++
			}
		default:
			counts["fitting"]++
		}
	}
	return counts
}
