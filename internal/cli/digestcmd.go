package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sidekickd/sidekick/internal/digest"
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Show or deliver the pending digest",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var digestShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show pending digest items without delivering them",
	Run:   runDigestShow,
}

var digestFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Deliver the pending digest now",
	Run:   runDigestFlush,
}

func init() {
	digestCmd.AddCommand(digestShowCmd)
	digestCmd.AddCommand(digestFlushCmd)
}

func runDigestShow(cmd *cobra.Command, args []string) {
	rt, err := buildRuntime()
	if err != nil {
		fmt.Printf("Startup error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	items := rt.queue.Items()
	if len(items) == 0 {
		fmt.Println("Digest is empty.")
		return
	}
	for _, item := range items {
		color.Cyan("%s %s", item.CreatedAt.Format("15:04"), item.Title)
		if item.Summary != "" && item.Summary != item.Title {
			fmt.Printf("  %s\n", item.Summary)
		}
		if item.RecommendedAction != "" {
			fmt.Printf("  suggested: %s\n", item.RecommendedAction)
		}
	}
}

func runDigestFlush(cmd *cobra.Command, args []string) {
	rt, err := buildRuntime()
	if err != nil {
		fmt.Printf("Startup error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	items := rt.queue.Flush()
	if len(items) == 0 {
		fmt.Println("Digest is empty.")
		return
	}
	if rt.recorder != nil {
		if err := rt.recorder.RecordDelivery(time.Now(), items); err != nil {
			fmt.Printf("Record error: %v\n", err)
		}
	}
	if err := rt.notifier.Notify(cmd.Context(), "Digest", digest.FormatBatch(items)); err != nil {
		fmt.Printf("Delivery error: %v\n", err)
		os.Exit(1)
	}
	color.Green("Delivered %d item(s).", len(items))
}
