package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/dantte-lp/counterd/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print counterctl build information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			out, err := formatVersion(appversion.Get("counterctl"), outputFormat)
			if err != nil {
				return fmt.Errorf("format version: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}
