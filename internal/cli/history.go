package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/teamcutter/nest/internal/domain"
	"github.com/teamcutter/nest/internal/history"
)

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var limit int
	var pkg string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the latest install attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(flags)
			if err != nil {
				return err
			}

			hist, err := history.Open(e.cfg.Paths.HistoryDB)
			if err != nil {
				return err
			}
			defer hist.Close()

			var entries []history.Entry
			if pkg != "" {
				id, err := domain.ParsePackageID(pkg)
				if err != nil {
					return err
				}
				last, err := hist.Last(id)
				if err != nil {
					return err
				}
				if last != nil {
					entries = append(entries, *last)
				}
			} else {
				entries, err = hist.Recent(limit)
				if err != nil {
					return err
				}
			}

			if len(entries) == 0 {
				fmt.Printf("%s No install recorded\n", dim("○"))
				return nil
			}

			for _, entry := range entries {
				when := dim(entry.FinishedAt.Local().Format("2006-01-02 15:04:05"))
				switch entry.Outcome {
				case history.Committed:
					fmt.Printf("%s %s %s\n", green("✓"), when, bold(entry.Target.String()))
				default:
					fmt.Printf("%s %s %s %s\n", red("✗"), when, bold(entry.Target.String()), yellow(entry.Kind))
					if pkg != "" {
						fmt.Printf("  %s\n", dim(entry.Message))
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().StringVarP(&pkg, "package", "p", "", "Only show the last attempt for this package")
	return cmd
}
