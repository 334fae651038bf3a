// Package cli implements the sidekick command line interface.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/sidekickd/sidekick/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"     _     _      _    _      _\n" +
		" ___(_) __| | ___| | _(_) ___| | __\n" +
		"/ __| |/ _` |/ _ \\ |/ / |/ __| |/ /\n" +
		"\\__ \\ | (_| |  __/   <| | (__|   <\n" +
		"|___/_|\\__,_|\\___|_|\\_\\_|\\___|_|\\_\\\n"
)

var rootCmd = &cobra.Command{
	Use:   "sidekick",
	Short: "sidekick - autonomous personal assistant backend",
	Long:  color.CyanString(logo) + "\nA goal-driven assistant daemon with policy-gated tools and long-term memory.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sidekick version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sidekick %s\n", version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(digestCmd)
}

func printHeader(title string) {
	color.Cyan("%s\n", title)
}
