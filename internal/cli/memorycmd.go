package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sidekickd/sidekick/internal/memory"
)

var (
	memoryType     string
	memoryPriority int
	memoryTags     string
	memoryLimit    int
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and extend long-term memory",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var memorySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memory for relevant records",
	Args:  cobra.MinimumNArgs(1),
	Run:   runMemorySearch,
}

var memorySaveCmd = &cobra.Command{
	Use:   "save <text>",
	Short: "Save a record to memory",
	Args:  cobra.MinimumNArgs(1),
	Run:   runMemorySave,
}

func init() {
	memorySearchCmd.Flags().IntVarP(&memoryLimit, "limit", "n", memory.DefaultTopK, "Maximum results")
	memorySaveCmd.Flags().StringVarP(&memoryType, "type", "t", string(memory.TypeFact), "Record type")
	memorySaveCmd.Flags().IntVarP(&memoryPriority, "priority", "p", 3, "Priority 1-5")
	memorySaveCmd.Flags().StringVar(&memoryTags, "tags", "", "Comma-separated tags")
	memoryCmd.AddCommand(memorySearchCmd)
	memoryCmd.AddCommand(memorySaveCmd)
}

func runMemorySearch(cmd *cobra.Command, args []string) {
	rt, err := buildRuntime()
	if err != nil {
		fmt.Printf("Startup error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	query := strings.Join(args, " ")
	records, err := rt.store.RetrieveRelevant(cmd.Context(), query, memoryLimit, memory.Filters{})
	if err != nil {
		fmt.Printf("Search error: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("No relevant memories.")
		return
	}
	for _, r := range records {
		color.Cyan("[%s] p%d %s", r.Type, r.Priority, r.CreatedAt.Format("2006-01-02"))
		fmt.Printf("  %s\n", r.Text)
		if len(r.Tags) > 0 {
			fmt.Printf("  tags: %s\n", strings.Join(r.Tags, ", "))
		}
	}
}

func runMemorySave(cmd *cobra.Command, args []string) {
	rt, err := buildRuntime()
	if err != nil {
		fmt.Printf("Startup error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	rec := memory.Record{
		Text:     strings.Join(args, " "),
		Type:     memory.Type(memoryType),
		Priority: memoryPriority,
		Source:   memory.SourceUser,
	}
	for _, tag := range strings.Split(memoryTags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			rec.Tags = append(rec.Tags, tag)
		}
	}

	saved, err := rt.store.Save(cmd.Context(), rec)
	if err != nil {
		fmt.Printf("Save error: %v\n", err)
		os.Exit(1)
	}
	color.Green("Saved %s (%s, priority %d)", saved.ID, saved.Type, saved.Priority)
}
