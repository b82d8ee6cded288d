package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/teamcutter/nest/internal/domain"
	"github.com/teamcutter/nest/internal/fetcher"
	"github.com/teamcutter/nest/internal/history"
	"github.com/teamcutter/nest/internal/transaction"
)

var stepLabels = map[transaction.State]string{
	transaction.Created:            "Resolving",
	transaction.RepositoryResolved: "Downloading",
	transaction.Downloaded:         "Extracting",
	transaction.Extracted:          "Installing",
}

func newInstallCmd(flags *globalFlags) *cobra.Command {
	var force bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "install <repository::category/name#version>...",
		Short: "Install packages, in the given order",
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

			ctx := cmd.Context()
			own, err := e.acquireLock(ctx)
			if err != nil {
				return err
			}
			defer own.Release()

			hist, err := history.Open(e.cfg.Paths.HistoryDB)
			if err != nil {
				e.logger.Warn("install history unavailable", "err", err)
			} else {
				defer hist.Close()
			}

			opts := transaction.Options{
				Downloader:    fetcher.NewMirrorDownloader(fetcher.New(timeout, os.Stderr), e.logger),
				ForceDownload: force,
				OnStep: func(id domain.PackageID, from transaction.State) {
					if label, ok := stepLabels[from]; ok {
						fmt.Printf("%s %s...\n", label, id)
					}
				},
				Stdout: os.Stdout,
				Stderr: os.Stderr,
				Logger: e.logger,
			}

			var failed int
			for _, id := range targets {
				started := time.Now()
				err := transaction.Run(ctx, e.cfg, e.cache, id, own, opts)

				entry := history.Entry{
					Target:     id,
					Outcome:    history.Committed,
					StartedAt:  started,
					FinishedAt: time.Now(),
				}
				if err != nil {
					failed++
					entry.Outcome = history.Failed
					entry.Message = err.Error()
					if kind, ok := transaction.KindOf(err); ok {
						entry.Kind = kind.String()
					}
					fmt.Printf("%s %v\n", red("✗"), err)
				} else {
					fmt.Printf("%s %s\n  %s %s\n", green("✓"), bold(id.String()),
						cyan("cache:"), e.cache.PackagePath(id))
				}

				if hist != nil {
					if err := hist.Record(entry); err != nil {
						e.logger.Warn("unable to record install", "package", id, "err", err)
					}
				}

				if ctx.Err() != nil {
					return ctx.Err()
				}
			}

			if failed > 0 {
				return fmt.Errorf("failed to install %d package(s)", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Download archives even if they are cached")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Hour, "Timeout of a single download attempt")
	return cmd
}
