package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/sidekickd/sidekick/internal/memory"
)

// MemorySaveTool persists a record to the memory store.
type MemorySaveTool struct {
	Store *memory.Store
}

func (t *MemorySaveTool) Name() string          { return "memory_save" }
func (t *MemorySaveTool) Risk() RiskLevel       { return RiskMedium }
func (t *MemorySaveTool) RequiresConfirm() bool { return false }

func (t *MemorySaveTool) Description() string {
	return "Save a fact, preference, or other note to long-term memory."
}

func (t *MemorySaveTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "The text to remember",
			},
			"type": map[string]any{
				"type":        "string",
				"description": "Record type: fact, preference, constraint, workflow, warning",
			},
			"priority": map[string]any{
				"type":        "integer",
				"description": "Importance 1-5, default 3",
			},
			"tags": map[string]any{
				"type":        "string",
				"description": "Optional comma-separated tags",
			},
		},
		"required": []string{"text"},
	}
}

func (t *MemorySaveTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	text := GetString(args, "text", "")
	if text == "" {
		return "Error: text is required", nil
	}

	rec := memory.Record{
		Text:     text,
		Type:     memory.Type(GetString(args, "type", string(memory.TypeFact))),
		Priority: GetInt(args, "priority", 3),
		Source:   memory.SourceLearned,
	}
	if tags := GetString(args, "tags", ""); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				rec.Tags = append(rec.Tags, tag)
			}
		}
	}

	saved, err := t.Store.Save(ctx, rec)
	if err != nil {
		return fmt.Sprintf("Error saving memory: %v", err), nil
	}
	return fmt.Sprintf("Saved memory %s (%s, priority %d)", saved.ID, saved.Type, saved.Priority), nil
}

// MemorySearchTool retrieves relevant records from the memory store.
type MemorySearchTool struct {
	Store *memory.Store
}

func (t *MemorySearchTool) Name() string          { return "memory_search" }
func (t *MemorySearchTool) Risk() RiskLevel       { return RiskLow }
func (t *MemorySearchTool) RequiresConfirm() bool { return false }

func (t *MemorySearchTool) Description() string {
	return "Search long-term memory for records relevant to a query."
}

func (t *MemorySearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What to search for",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum results, default 8",
			},
		},
		"required": []string{"query"},
	}
}

func (t *MemorySearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query := GetString(args, "query", "")
	if query == "" {
		return "Error: query is required", nil
	}
	limit := GetInt(args, "limit", memory.DefaultTopK)

	records, err := t.Store.RetrieveRelevant(ctx, query, limit, memory.Filters{})
	if err != nil {
		return fmt.Sprintf("Error searching memory: %v", err), nil
	}
	if len(records) == 0 {
		return "No relevant memories found.", nil
	}
	return memory.FormatForPrompt(records), nil
}
