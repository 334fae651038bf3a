// Package tools provides the tool framework, builtin handlers, and the
// security guard applied before any tool runs.
package tools

import (
	"context"
	"fmt"
)

// RiskLevel classifies how much damage a tool can do.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"    // read-only
	RiskMedium RiskLevel = "medium" // controlled writes
	RiskHigh   RiskLevel = "high"   // external or destructive effects
)

// Source says where a definition came from. External definitions override
// builtins sharing a name when the gateway merges the catalog.
type Source string

const (
	SourceBuiltin  Source = "builtin"
	SourceExternal Source = "external"
)

// Definition is the catalog entry for a tool, builtin or external.
type Definition struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	RiskLevel       RiskLevel      `json:"risk_level"`
	RequiresConfirm bool           `json:"requires_confirm"`
	Source          Source         `json:"source"`
}

// Tool is the interface all builtin tools implement.
type Tool interface {
	// Name returns the tool identifier used in decisions.
	Name() string
	// Description returns a human-readable description for the provider.
	Description() string
	// Parameters returns the JSON Schema for tool arguments.
	Parameters() map[string]any
	// Risk returns the tool's risk level.
	Risk() RiskLevel
	// RequiresConfirm reports whether the tool needs an explicit
	// confirmed flag before executing.
	RequiresConfirm() bool
	// Execute runs the tool. On failure it returns a user-friendly
	// message as the result, not an error, unless the failure is
	// unrecoverable.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds builtin tools.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Definitions returns catalog entries for every registered tool.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, Definition{
			Name:            tool.Name(),
			Description:     tool.Description(),
			Parameters:      tool.Parameters(),
			RiskLevel:       tool.Risk(),
			RequiresConfirm: tool.RequiresConfirm(),
			Source:          SourceBuiltin,
		})
	}
	return out
}

// Execute runs a registered tool by name.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("tool not found: %s", name)
	}
	return tool.Execute(ctx, args)
}

// GetString extracts a string argument with a default value.
func GetString(args map[string]any, key, defaultVal string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// GetInt extracts an int argument with a default value.
func GetInt(args map[string]any, key string, defaultVal int) int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return defaultVal
}

// GetBool extracts a bool argument with a default value.
func GetBool(args map[string]any, key string, defaultVal bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// Confirmed reports whether the caller attached an explicit confirmation
// flag to the arguments.
func Confirmed(args map[string]any) bool {
	return GetBool(args, "confirm", false) || GetBool(args, "confirmed", false)
}
