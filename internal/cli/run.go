package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sidekickd/sidekick/internal/agent"
)

var (
	runGoal  string
	runSteps int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent on a goal",
	Run:   runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runGoal, "goal", "g", "", "Goal for the agent to work on")
	runCmd.Flags().IntVar(&runSteps, "steps", 0, "Step limit for this run (default from config)")
}

func runRun(cmd *cobra.Command, args []string) {
	if runGoal == "" && len(args) > 0 {
		runGoal = strings.Join(args, " ")
	}
	if runGoal == "" {
		fmt.Println("Error: --goal is required")
		os.Exit(1)
	}

	printHeader("sidekick run")

	rt, err := buildRuntime()
	if err != nil {
		fmt.Printf("Startup error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go rt.scheduler().Run(ctx)

	limit := runSteps
	if limit == 0 {
		limit = rt.cfg.Agent.StepLimit
	}
	st, err := rt.loop.Run(ctx, runGoal, limit)
	if err != nil {
		fmt.Printf("Run error: %v\n", err)
		os.Exit(1)
	}
	printOutcome(st)
}

func printOutcome(st *agent.State) {
	switch st.Status {
	case agent.StatusSuccess:
		color.Green("✓ %s", st.FinalResult)
	case agent.StatusFailed:
		color.Red("✗ %s", st.FinalResult)
	case agent.StatusStepLimit:
		color.Yellow("… %s", st.FinalResult)
	case agent.StatusWaitingUser:
		color.Yellow("? %s", st.Question)
		fmt.Printf("Reply with: sidekick resume %s -m \"<answer>\"\n", st.ID)
	default:
		fmt.Printf("%s: %s\n", st.Status, st.FinalResult)
	}
	fmt.Printf("run %s, %d step(s)\n", st.ID, st.StepCount)
}
