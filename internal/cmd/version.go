package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zdiemer/simplescraper/internal/server/handlers"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for full details including Crucible and Go versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		info := handlers.CurrentVersion()

		_, _ = fmt.Fprintf(out, "%s %s\n", info.Name, info.Build.Version)
		if !extended {
			return nil
		}

		_, _ = fmt.Fprintf(out, "Commit: %s\n", info.Build.Commit)
		_, _ = fmt.Fprintf(out, "Built: %s\n", info.Build.Date)
		_, _ = fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
		_, _ = fmt.Fprintf(out, "Platform: %s\n\n", info.Platform)
		_, _ = fmt.Fprintf(out, "Gofulmen: %s\n", info.Dependencies["gofulmen"])
		_, _ = fmt.Fprintf(out, "Crucible: %s\n", info.Dependencies["crucible"])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
