package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pipeflow/pkg/fitting"
	"github.com/matzehuels/pipeflow/pkg/netio"
	"github.com/matzehuels/pipeflow/pkg/pipeline"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output   string  // output file path
	format   string  // svg, png, pdf or dot; inferred from output when empty
	solve    bool    // solve before drawing and label flows and pressures
	detailed bool    // label flows and pressures without solving
	scale    float64 // PNG resolution factor
	solveOpts
}

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render [network.yaml]",
		Short: "Draw a fitting network as a diagram",
		Long: `Draw a fitting network as a node-link diagram.

With --solve the network is solved first; edges are labelled with their
flows, components with their port pressures, and components that reported
problems are highlighted. Assemblies are drawn as dashed clusters.

The format is taken from --format, else from the extension of --output,
else SVG. PNG and PDF output need rsvg-convert on the PATH.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, output, err := resolveOutput(args[0], opts.output, opts.format)
			if err != nil {
				return err
			}
			opts.format, opts.output = format, output
			return c.runRender(cmd.Context(), args[0], &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: <network>.<format>)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "output format: svg (default), png, pdf, dot")
	cmd.Flags().BoolVar(&opts.solve, "solve", false, "solve first and label flows and pressures")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "label the flows and pressures stored in the network file")
	cmd.Flags().Float64Var(&opts.scale, "scale", 2, "PNG resolution factor")
	opts.solveOpts.register(cmd)

	return cmd
}

// resolveOutput settles the format and output path from the flags.
func resolveOutput(input, output, format string) (string, string, error) {
	if format == "" && output != "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(output)), ".")
	}
	if format == "" {
		format = pipeline.FormatSVG
	}
	if err := pipeline.ValidateFormat(format); err != nil {
		return "", "", err
	}
	if output == "" {
		output = outputPath(input, format)
	}
	return format, output, nil
}

func (c *CLI) runRender(ctx context.Context, input string, opts *renderOpts) error {
	logger := loggerFromContext(ctx)

	var (
		tree      *fitting.Tree
		highlight map[string]bool
		err       error
	)
	if opts.solve {
		var res *pipeline.Result
		tree, res, err = c.solveFile(ctx, input, &opts.solveOpts, true)
		if err != nil {
			return err
		}
		highlight = problemComponents(res.Errors)
		logger.Debug("solved before render", "iterations", res.Iterations, "problems", len(highlight))
	} else {
		tree, err = netio.Import(input)
		if err != nil {
			return fmt.Errorf("load network %s: %w", input, err)
		}
	}

	runner, err := c.newRunner(ctx, opts.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	spinner := newSpinner(ctx, fmt.Sprintf("Rendering %s...", opts.format))
	spinner.Start()
	data, cacheHit, err := runner.RenderWithCacheInfo(ctx, tree, pipeline.RenderOptions{
		Format:    opts.format,
		Detailed:  opts.solve || opts.detailed,
		Highlight: highlight,
		Scale:     opts.scale,
	})
	if err != nil {
		spinner.StopWithError("Render failed")
		return fmt.Errorf("render: %w", err)
	}
	spinner.Stop()

	if err := os.WriteFile(opts.output, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", opts.output, err)
	}
	printSuccess("Rendered %s", strings.ToUpper(opts.format))
	printStats(cacheHit, fmt.Sprintf("%d components", len(tree.Flatten())), fmt.Sprintf("%d bytes", len(data)))
	printFile(opts.output)
	return nil
}

// problemComponents collects the IDs of components named by errs.
func problemComponents(errs []fitting.FittingError) map[string]bool {
	if len(errs) == 0 {
		return nil
	}
	ids := make(map[string]bool, len(errs))
	for _, fe := range errs {
		if fe.ComponentID != "" {
			ids[fe.ComponentID] = true
		}
	}
	return ids
}
