package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sidekickd/sidekick/internal/memory"
	"github.com/sidekickd/sidekick/internal/tools"
)

const (
	historyWindow = 5
	errorWindow   = 3
)

// renderPrompt builds the decision prompt for one step.
func renderPrompt(st *State, memories []*memory.Record, defs []tools.Definition) string {
	var b strings.Builder

	b.WriteString("You are a personal assistant working toward a goal by choosing one next step at a time.\n\n")
	fmt.Fprintf(&b, "Goal: %s\n", st.Goal)
	fmt.Fprintf(&b, "Step %d of %d.\n", st.StepCount, st.StepLimit)

	if block := memory.FormatForPrompt(memories); block != "" {
		b.WriteString("\nRelevant knowledge:\n")
		b.WriteString(block)
		b.WriteString("\n")
	}

	if st.Context.SystemInfo != "" {
		b.WriteString("\nSystem:\n")
		b.WriteString(st.Context.SystemInfo)
		b.WriteString("\n")
	}

	if history := st.lastHistory(historyWindow); len(history) > 0 {
		b.WriteString("\nRecent steps:\n")
		for _, h := range history {
			fmt.Fprintf(&b, "%d. %s -> %s\n", h.Step, h.Action, h.Result)
		}
	}

	if errs := st.lastErrors(errorWindow); len(errs) > 0 {
		b.WriteString("\nRecent errors:\n")
		for _, e := range errs {
			fmt.Fprintf(&b, "- step %d (%s): %s\n", e.Step, e.Action, e.Message)
		}
	}

	if pc := st.Context.PendingConfirmation; pc != nil {
		fmt.Fprintf(&b, "\nAwaiting confirmation for: %s %v\n", pc.Tool, pc.Args)
	}
	if st.Context.UserResponse != "" {
		fmt.Fprintf(&b, "\nUser said: %s\n", st.Context.UserResponse)
	}

	b.WriteString("\nAvailable tools:\n")
	sorted := append([]tools.Definition(nil), defs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, def := range sorted {
		fmt.Fprintf(&b, "- %s: %s", def.Name, def.Description)
		var flags []string
		if def.RequiresConfirm {
			flags = append(flags, "requires confirmation")
		}
		if def.RiskLevel != "" && def.RiskLevel != tools.RiskLow {
			flags = append(flags, "risk: "+string(def.RiskLevel))
		}
		if len(flags) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(flags, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString(`
Reply with exactly one JSON object:
{"decision": "tool_call", "tool": "<name>", "args": {...}, "reasoning": "..."}
or {"decision": "ask_user", "question": "..."}
or {"decision": "stop", "success": true|false, "result": "..."}
`)
	return b.String()
}
