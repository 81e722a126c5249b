package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pipeflow/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the solve and render cache",
		Long: `Manage the solve and render cache.

Solve results and diagrams live in the file cache under the XDG cache
directory, or in Redis when --cache-url or $PIPEFLOW_CACHE_URL is set.`,
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached results and diagrams",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, where, err := c.clearCache(cmd.Context())
			if err != nil {
				return err
			}
			if count == 0 {
				printInfo("Cache is empty")
				return nil
			}
			printSuccess("Cleared %d cached entries", count)
			printDetail("Location: %s", where)
			return nil
		},
	}
}

func (c *CLI) clearCache(ctx context.Context) (int, string, error) {
	backend, err := c.newCache(false)
	if err != nil {
		return 0, "", err
	}
	defer backend.Close()

	switch b := backend.(type) {
	case *cache.FileCache:
		n, err := b.Clear()
		return n, b.Dir(), err
	case *cache.RedisCache:
		n, err := b.Clear(ctx)
		return n, "redis " + redisPrefix + "*", err
	default:
		return 0, "", nil
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Fprintln(stdout, dir)
			return nil
		},
	}
}
