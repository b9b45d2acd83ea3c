package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "simplebot",
	Short: "Extensible chat bot driven by plugins",
	Long:  "SimpleBot runs chat messages and commands through listeners, filters and commands contributed by plugins.",
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
