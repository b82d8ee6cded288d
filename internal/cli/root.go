package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/teamcutter/nest/internal/cache"
	"github.com/teamcutter/nest/internal/config"
	"github.com/teamcutter/nest/internal/lock"
)

type globalFlags struct {
	configPath string
	verbose    bool
}

func Execute(ctx context.Context) error {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "nest",
		Short:         "Install packages from nest repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultPath, "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Print debug logs")

	rootCmd.AddCommand(
		newInstallCmd(flags),
		newCacheCmd(flags),
		newHistoryCmd(flags),
		newRepositoriesCmd(flags),
		newConfigCmd(flags),
		newVersionCmd(),
	)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("✗"), err)
	}
	return err
}

type env struct {
	cfg    *config.Config
	cache  *cache.DownloadedPackages
	logger *log.Logger
}

func newEnv(flags *globalFlags) (*env, error) {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "nest"})
	if flags.verbose {
		logger.SetLevel(log.DebugLevel)
	}

	cfg, err := config.LoadFrom(flags.configPath)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:    cfg,
		cache:  cache.New(cfg.Paths.CacheDir, cfg.Paths.ScratchDir),
		logger: logger,
	}, nil
}

// acquireLock takes the package store lock, waiting for any other nest
// process holding it until ctx is cancelled.
func (e *env) acquireLock(ctx context.Context) (*lock.Ownership, error) {
	own, err := lock.TryAcquire(e.cfg.Paths.LockFile)
	if err == nil {
		return own, nil
	}
	if !errors.Is(err, lock.ErrLocked) {
		return nil, err
	}

	stop := withSpinner(ctx, "Waiting for another nest process to finish...")
	defer stop()
	return lock.AcquireContext(ctx, e.cfg.Paths.LockFile)
}
