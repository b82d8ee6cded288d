package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/teamcutter/nest/internal/config"
)

func newRepositoriesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "repositories",
		Aliases: []string{"repos"},
		Short:   "List configured repositories and their mirrors",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(flags)
			if err != nil {
				return err
			}

			repos := e.cfg.RepositoryList()
			if len(repos) == 0 {
				fmt.Printf("%s No repository configured in %s\n", dim("○"), flags.configPath)
				return nil
			}

			for _, repo := range repos {
				fmt.Printf("%s %s\n", green("●"), bold(repo.Name))
				if len(repo.Mirrors) == 0 {
					fmt.Printf("  %s\n", yellow("no mirrors"))
				}
				for _, mirror := range repo.Mirrors {
					fmt.Printf("  %s\n", mirror)
				}
			}
			return nil
		},
	}
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return fmt.Errorf("failed to write configuration: %w", err)
			}
			fmt.Printf("%s Configuration written to %s\n", green("✓"), path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}
