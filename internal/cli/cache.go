package cli

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const maxParallel = 8

func newCacheCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage downloaded archives",
	}
	cmd.AddCommand(
		newCacheStatusCmd(flags),
		newCacheInspectCmd(flags),
		newCacheRemoveCmd(flags),
		newCacheClearCmd(flags),
	)
	return cmd
}

func newCacheStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <repository::category/name#version>...",
		Short: "Show whether packages are downloaded",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parseTargets(args)
			if err != nil {
				return err
			}

			e, err := newEnv(flags)
			if err != nil {
				return err
			}

			cached := make([]bool, len(targets))
			mu := &sync.Mutex{}

			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(min(len(targets), maxParallel))

			for i, id := range targets {
				g.Go(func() error {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					has := e.cache.Has(id)
					mu.Lock()
					cached[i] = has
					mu.Unlock()
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			fmt.Printf("%s %s\n", cyan("cache:"), e.cache.Root())
			for i, id := range targets {
				if cached[i] {
					fmt.Printf("%s %s\n  %s %s\n", green("●"), bold(id.String()), cyan("path:"), e.cache.PackagePath(id))
				} else {
					fmt.Printf("%s %s %s\n", dim("○"), id, dim("(not downloaded)"))
				}
			}
			return nil
		},
	}
}

func newCacheRemoveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <repository::category/name#version>...",
		Short: "Remove downloaded archives",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parseTargets(args)
			if err != nil {
				return err
			}

			e, err := newEnv(flags)
			if err != nil {
				return err
			}

			own, err := e.acquireLock(cmd.Context())
			if err != nil {
				return err
			}
			defer own.Release()

			var failed int
			for _, id := range targets {
				if err := e.cache.Remove(id, own); err != nil {
					fmt.Printf("%s %s: %v\n", red("✗"), id, err)
					failed++
					continue
				}
				fmt.Printf("%s %s\n", green("✓"), bold(id.String()))
			}

			if failed > 0 {
				return fmt.Errorf("failed to remove %d archive(s)", failed)
			}
			return nil
		},
	}
}

func newCacheClearCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every downloaded archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(flags)
			if err != nil {
				return err
			}

			own, err := e.acquireLock(cmd.Context())
			if err != nil {
				return err
			}
			defer own.Release()

			size, _ := e.cache.Size()

			if err := e.cache.Clear(own); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}

			fmt.Printf("%s Cache cleared (%s freed)\n", green("✓"), formatSize(size))
			return nil
		},
	}
}
