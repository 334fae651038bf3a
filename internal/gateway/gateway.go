// Package gateway resolves tool calls: catalog caching, security
// validation, and dispatch to builtin handlers or the external worker.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sidekickd/sidekick/internal/tools"
)

// ErrToolNotFound is returned when a call names an unknown tool.
var ErrToolNotFound = errors.New("tool not found")

// catalogTTL bounds how long a merged catalog is served before the
// external worker is asked again.
const catalogTTL = 60 * time.Second

// Status classifies an execution result.
type Status string

const (
	StatusOK           Status = "ok"
	StatusDenied       Status = "denied"
	StatusNeedsConfirm Status = "needs_confirm"
)

// Result is the outcome of Execute. For needs_confirm, Tool and Args echo
// the original call unchanged so a retry plus a confirmed flag reproduces
// the identical call.
type Result struct {
	Status  Status             `json:"status"`
	Output  string             `json:"output,omitempty"`
	Reason  tools.DenialReason `json:"reason,omitempty"`
	Message string             `json:"message,omitempty"`
	Tool    string             `json:"tool,omitempty"`
	Args    map[string]any     `json:"args,omitempty"`
	DryRun  bool               `json:"dry_run,omitempty"`
}

// ExternalSource is the worker-facing surface the gateway needs.
type ExternalSource interface {
	ListTools(ctx context.Context) ([]tools.Definition, error)
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
}

// Gateway merges builtin and external tool catalogs and gates every call
// through the security guard before dispatch.
type Gateway struct {
	registry *tools.Registry
	external ExternalSource
	guard    *tools.Guard

	mu        sync.Mutex
	catalog   map[string]tools.Definition
	fetchedAt time.Time
	now       func() time.Time
}

// New creates a gateway. external may be nil when no worker is configured.
func New(registry *tools.Registry, external ExternalSource) *Gateway {
	return &Gateway{
		registry: registry,
		external: external,
		guard:    tools.NewGuard(),
		now:      time.Now,
	}
}

// SetClock overrides the wall clock. Test hook.
func (g *Gateway) SetClock(now func() time.Time) {
	g.mu.Lock()
	g.now = now
	g.mu.Unlock()
}

// Catalog returns the merged tool catalog, refreshing it when the cached
// copy is older than the TTL. External definitions override builtins
// sharing a name.
func (g *Gateway) Catalog(ctx context.Context) map[string]tools.Definition {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.catalog != nil && g.now().Sub(g.fetchedAt) < catalogTTL {
		return g.catalog
	}

	merged := make(map[string]tools.Definition)
	for _, def := range g.registry.Definitions() {
		merged[def.Name] = def
	}
	if g.external != nil {
		defs, err := g.external.ListTools(ctx)
		if err != nil {
			slog.Warn("External tool catalog unavailable, serving builtins only", "error", err)
		}
		for _, def := range defs {
			merged[def.Name] = def
		}
	}
	g.catalog = merged
	g.fetchedAt = g.now()
	return merged
}

// Definitions returns the catalog as a slice, for prompt rendering.
func (g *Gateway) Definitions(ctx context.Context) []tools.Definition {
	catalog := g.Catalog(ctx)
	out := make([]tools.Definition, 0, len(catalog))
	for _, def := range catalog {
		out = append(out, def)
	}
	return out
}

// Lookup resolves one definition from the cached catalog.
func (g *Gateway) Lookup(ctx context.Context, name string) (tools.Definition, bool) {
	def, ok := g.Catalog(ctx)[name]
	return def, ok
}

// Execute resolves, validates, and dispatches one tool call. Security
// checks run before anything executes; a failed check returns a denied
// result without side effects.
func (g *Gateway) Execute(ctx context.Context, name string, args map[string]any, dryRun bool) (*Result, error) {
	def, ok := g.Catalog(ctx)[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	if def.RequiresConfirm && !tools.Confirmed(args) {
		return &Result{
			Status:  StatusNeedsConfirm,
			Reason:  tools.DenialConfirmationRequired,
			Message: fmt.Sprintf("tool %s requires confirmation", name),
			Tool:    name,
			Args:    args,
		}, nil
	}

	if reason, msg := g.guard.Validate(def, args); reason != "" {
		return &Result{
			Status:  StatusDenied,
			Reason:  reason,
			Message: msg,
			Tool:    name,
		}, nil
	}

	if dryRun {
		return &Result{
			Status:  StatusOK,
			Message: fmt.Sprintf("dry run: %s validated, not executed", name),
			Tool:    name,
			Args:    args,
			DryRun:  true,
		}, nil
	}

	var (
		output string
		err    error
	)
	if def.Source == tools.SourceExternal {
		if g.external == nil {
			return nil, fmt.Errorf("external tool %s has no worker", name)
		}
		output, err = g.external.Invoke(ctx, name, args)
	} else {
		output, err = g.registry.Execute(ctx, name, args)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Status: StatusOK, Output: output, Tool: name}, nil
}
