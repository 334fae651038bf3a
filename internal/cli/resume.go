package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var resumeMessage string

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a run that is waiting for your input",
	Args:  cobra.ExactArgs(1),
	Run:   runResume,
}

func init() {
	resumeCmd.Flags().StringVarP(&resumeMessage, "message", "m", "", "Your answer to the pending question")
}

func runResume(cmd *cobra.Command, args []string) {
	if resumeMessage == "" {
		fmt.Println("Error: --message is required")
		os.Exit(1)
	}

	printHeader("sidekick resume")

	rt, err := buildRuntime()
	if err != nil {
		fmt.Printf("Startup error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	st, err := rt.loop.Resume(cmd.Context(), args[0], resumeMessage)
	if err != nil {
		fmt.Printf("Resume error: %v\n", err)
		os.Exit(1)
	}
	printOutcome(st)
}
