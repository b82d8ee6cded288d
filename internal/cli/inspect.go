package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/teamcutter/nest/internal/domain"
	"github.com/teamcutter/nest/internal/npf"
)

func newCacheInspectCmd(flags *globalFlags) *cobra.Command {
	var raw bool
	var extractTo string

	cmd := &cobra.Command{
		Use:   "inspect <repository::category/name#version>",
		Short: "Show the manifest of a downloaded archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParsePackageID(args[0])
			if err != nil {
				return err
			}

			e, err := newEnv(flags)
			if err != nil {
				return err
			}

			if !e.cache.Has(id) {
				return fmt.Errorf("%s is not downloaded", id)
			}

			return e.cache.With(id, func(ex *npf.Explorer) error {
				if raw {
					f, err := ex.OpenManifest()
					if err != nil {
						return err
					}
					defer f.Close()
					_, err = io.Copy(os.Stdout, f)
					return err
				}

				printManifest(id, ex)

				if extractTo == "" {
					return nil
				}
				own, err := e.acquireLock(cmd.Context())
				if err != nil {
					return err
				}
				defer own.Release()

				if err := ex.UnpackData(extractTo, own); err != nil {
					return err
				}
				fmt.Printf("%s Payload extracted to %s\n", green("✓"), extractTo)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print manifest.toml as stored in the archive")
	cmd.Flags().StringVar(&extractTo, "extract", "", "Extract the payload into this directory")
	return cmd
}

func printManifest(id domain.PackageID, ex *npf.Explorer) {
	m := ex.Manifest()

	fmt.Printf("%s %s\n", bold(id.String()), dim("("+string(m.Kind)+")"))
	if m.Metadata.Description != "" {
		fmt.Printf("  %s\n", m.Metadata.Description)
	}
	if m.Metadata.Maintainer != "" {
		fmt.Printf("  %s %s\n", cyan("maintainer:"), m.Metadata.Maintainer)
	}
	if len(m.Metadata.Licenses) > 0 {
		fmt.Printf("  %s %s\n", cyan("licenses:"), strings.Join(m.Metadata.Licenses, ", "))
	}
	if m.Metadata.UpstreamURL != "" {
		fmt.Printf("  %s %s\n", cyan("upstream:"), m.Metadata.UpstreamURL)
	}
	if !m.WrapDate.IsZero() {
		fmt.Printf("  %s %s\n", cyan("wrapped:"), m.WrapDate.Format("2006-01-02"))
	}

	if len(m.Dependencies) == 0 {
		return
	}
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("  %s\n", cyan("dependencies:"))
	for _, name := range names {
		fmt.Printf("    %s %s\n", name, dim(m.Dependencies[name]))
	}
}
