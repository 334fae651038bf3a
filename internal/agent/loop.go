package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/sidekickd/sidekick/internal/autonomy"
	"github.com/sidekickd/sidekick/internal/digest"
	"github.com/sidekickd/sidekick/internal/gateway"
	"github.com/sidekickd/sidekick/internal/memory"
	"github.com/sidekickd/sidekick/internal/provider"
	"github.com/sidekickd/sidekick/internal/tools"
	"github.com/sidekickd/sidekick/internal/trace"
)

// assistantDomain is the policy domain every interactive run is gated
// under.
const assistantDomain = "personal_assistant"

// ErrNotWaiting is returned when resuming a run that is not paused.
var ErrNotWaiting = errors.New("run is not waiting for user input")

// resultKind classifies one Act outcome.
type resultKind string

const (
	resultOK              resultKind = "ok"
	resultError           resultKind = "error"
	resultSkipped         resultKind = "skipped"
	resultNeedsConfirm    resultKind = "needs_confirm"
	resultNeedsPermission resultKind = "needs_permission"
	resultWaitingUser     resultKind = "waiting_user"
	resultStopped         resultKind = "stopped"
)

type stepResult struct {
	kind   resultKind
	tool   string
	output string
}

type observation struct {
	memories []*memory.Record
	defs     []tools.Definition
	summary  string
}

// Options carries the optional loop collaborators.
type Options struct {
	Digest     *digest.Queue
	Tracer     trace.Publisher
	Cache      *StateCache
	States     StateStore
	Classifier Classifier
	FactsOnly  bool
}

// Loop drives agent runs. MemoryStore and the policy engine are shared
// across concurrent runs; each State is owned by exactly one execution.
type Loop struct {
	provider   provider.DecisionProvider
	store      *memory.Store
	policy     *autonomy.Engine
	gateway    *gateway.Gateway
	digest     *digest.Queue
	tracer     trace.Publisher
	cache      *StateCache
	states     StateStore
	classifier Classifier
	factsOnly  bool
	now        func() time.Time
}

// New creates a loop over the shared subsystems.
func New(p provider.DecisionProvider, store *memory.Store, policy *autonomy.Engine, gw *gateway.Gateway, opts Options) *Loop {
	l := &Loop{
		provider:   p,
		store:      store,
		policy:     policy,
		gateway:    gw,
		digest:     opts.Digest,
		tracer:     opts.Tracer,
		cache:      opts.Cache,
		states:     opts.States,
		classifier: opts.Classifier,
		factsOnly:  opts.FactsOnly,
		now:        time.Now,
	}
	if l.tracer == nil {
		l.tracer = trace.NopPublisher{}
	}
	if l.cache == nil {
		l.cache = NewStateCache(DefaultCacheSize)
	}
	if l.classifier == nil {
		l.classifier = HeuristicClassifier{}
	}
	return l
}

// Cache exposes the state cache for inspection commands.
func (l *Loop) Cache() *StateCache { return l.cache }

// Run executes a fresh goal until it terminates or pauses.
func (l *Loop) Run(ctx context.Context, goal string, stepLimit int) (*State, error) {
	st := NewState(goal, stepLimit)
	slog.Info("Agent run started", "id", st.ID, "goal", goal, "step_limit", st.StepLimit)
	return l.run(ctx, st)
}

// Resume continues a WAITING_USER run with the user's answer. Runs not in
// the cache are hydrated from the state store, so a pause survives the
// process that created it.
func (l *Loop) Resume(ctx context.Context, id, userResponse string) (*State, error) {
	st, ok := l.cache.Get(id)
	if !ok && l.states != nil {
		loaded, err := l.states.LoadState(id)
		if err != nil {
			return nil, fmt.Errorf("load run %s: %w", id, err)
		}
		if loaded != nil {
			st, ok = loaded, true
		}
	}
	if !ok {
		return nil, fmt.Errorf("unknown run: %s", id)
	}
	if st.Status != StatusWaitingUser {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotWaiting, id, st.Status)
	}
	st.Context.UserResponse = userResponse
	st.Question = ""
	st.Status = StatusRunning
	slog.Info("Agent run resumed", "id", st.ID)
	return l.run(ctx, st)
}

func (l *Loop) run(ctx context.Context, st *State) (*State, error) {
	for st.Status == StatusRunning {
		if st.StepCount >= st.StepLimit {
			st.Status = StatusStepLimit
			st.FinalResult = fmt.Sprintf("stopped after %d steps; last attempted action: %s", st.StepCount, st.LastAction)
			break
		}
		if st.ConsecutiveErrors >= maxConsecutiveErrors {
			st.Status = StatusFailed
			st.FinalResult = fmt.Sprintf("giving up after %d consecutive errors; last: %s", st.ConsecutiveErrors, st.LastResult)
			break
		}
		st.StepCount++

		userResponse := st.Context.UserResponse

		obs := l.observe(ctx, st)
		dec := l.decide(ctx, st, obs)
		res := l.act(ctx, st, dec)
		l.record(ctx, st, obs, dec, res, userResponse)
	}

	st.UpdatedAt = l.now()
	l.cache.Put(st)
	if l.states != nil {
		if st.Status == StatusWaitingUser {
			if err := l.states.SaveState(st); err != nil {
				slog.Warn("State persistence failed", "id", st.ID, "error", err)
			}
		} else if err := l.states.DeleteState(st.ID); err != nil {
			slog.Warn("State cleanup failed", "id", st.ID, "error", err)
		}
	}
	slog.Info("Agent run paused or finished", "id", st.ID, "status", st.Status, "steps", st.StepCount)
	return st, nil
}

// observe refreshes the tool catalog, retrieves relevant memories, and
// snapshots the host.
func (l *Loop) observe(ctx context.Context, st *State) observation {
	defs := l.gateway.Definitions(ctx)
	st.Toolset = st.Toolset[:0]
	for _, def := range defs {
		st.Toolset = append(st.Toolset, def.Name)
	}

	query := memory.BuildRetrievalQuery(st.Goal, st.LastAction, st.LastResult)
	filters := st.MemoryFilter
	if filters.MinPriority == 0 {
		filters.MinPriority = memory.DefaultMinPriority
	}
	if len(filters.Types) == 0 {
		if l.factsOnly {
			filters.Types = memory.FactTypes
		} else {
			filters.Types = memory.AllTypes
		}
	}
	memories, err := l.store.RetrieveRelevant(ctx, query, memory.DefaultTopK, filters)
	if err != nil {
		slog.Warn("Memory retrieval failed, continuing without context", "error", err)
		memories = nil
	}
	st.Context.Memories = memories

	hostname, _ := os.Hostname()
	st.Context.SystemInfo = fmt.Sprintf("%s/%s on %s, local time %s",
		runtime.GOOS, runtime.GOARCH, hostname, l.now().Format("Mon 15:04"))

	return observation{
		memories: memories,
		defs:     defs,
		summary:  fmt.Sprintf("%d tools, %d memories", len(defs), len(memories)),
	}
}

// decide asks the provider for the next step, or re-issues a pending
// confirmed call without a provider round-trip.
func (l *Loop) decide(ctx context.Context, st *State, obs observation) *Decision {
	if pc := st.Context.PendingConfirmation; pc != nil && IsAffirmative(st.Context.UserResponse) {
		args := make(map[string]any, len(pc.Args)+1)
		for k, v := range pc.Args {
			args[k] = v
		}
		args["confirmed"] = true
		st.Context.PendingConfirmation = nil
		return &Decision{
			Type:      DecisionToolCall,
			Tool:      pc.Tool,
			Args:      args,
			Reasoning: "user confirmed the pending call",
		}
	}

	prompt := renderPrompt(st, obs.memories, obs.defs)
	reply, err := l.provider.Complete(ctx, &provider.CompletionRequest{
		Messages: []provider.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		slog.Warn("Decision provider failed", "error", err)
		return failClosed(fmt.Sprintf("decision provider unavailable: %v", err))
	}
	return ParseDecision(reply)
}

// act applies the policy gate and dispatches the decision.
func (l *Loop) act(ctx context.Context, st *State, dec *Decision) stepResult {
	switch dec.Type {
	case DecisionAskUser:
		st.Status = StatusWaitingUser
		st.Question = dec.Question
		return stepResult{kind: resultWaitingUser, output: dec.Question}

	case DecisionStop:
		if dec.Success {
			st.Status = StatusSuccess
		} else {
			st.Status = StatusFailed
		}
		st.FinalResult = dec.Result
		return stepResult{kind: resultStopped, output: dec.Result}
	}

	name := dec.Tool
	def, ok := l.gateway.Lookup(ctx, name)
	if !ok {
		return stepResult{kind: resultError, tool: name, output: fmt.Sprintf("tool not found: %s", name)}
	}
	confirmed := tools.Confirmed(dec.Args)

	policyDec := l.policy.Decide(autonomy.Request{
		Domain:  assistantDomain,
		Trigger: "user_request",
		Signal: autonomy.Signal{
			Impact:          2,
			TimeSensitivity: 1,
			Confidence:      2,
		},
		Risk: autonomy.Risk{
			ToolRisk: string(def.RiskLevel),
			Category: deriveCategory(name),
		},
		RequiresWrite: def.RequiresConfirm || confirmed,
		UserInitiated: true,
	})

	switch policyDec.Outcome {
	case autonomy.OutcomeDoNothing, autonomy.OutcomeLogOnly, autonomy.OutcomeNotify:
		return stepResult{
			kind:   resultSkipped,
			tool:   name,
			output: fmt.Sprintf("skipped by policy (%s)", policyDec.Reason),
		}
	case autonomy.OutcomeAskPermission:
		if !confirmed {
			st.Context.PendingConfirmation = &PendingConfirmation{Tool: name, Args: dec.Args}
			st.Status = StatusWaitingUser
			st.Question = fmt.Sprintf("May I run %s with %v?", name, dec.Args)
			l.policy.RecordOutcome(policyDec)
			return stepResult{kind: resultNeedsPermission, tool: name, output: st.Question}
		}
	}

	if def.RequiresConfirm && !confirmed {
		st.Context.PendingConfirmation = &PendingConfirmation{Tool: name, Args: dec.Args}
		st.Status = StatusWaitingUser
		st.Question = fmt.Sprintf("%s requires confirmation. Run it with %v?", name, dec.Args)
		return stepResult{kind: resultNeedsConfirm, tool: name, output: st.Question}
	}

	switch policyDec.Outcome {
	case autonomy.OutcomeAct, autonomy.OutcomeActThenReport:
		l.policy.RecordOutcome(policyDec)
	case autonomy.OutcomeAskPermission:
		// User approved; the executed call still counts against the
		// action budget.
		l.policy.RecordConfirmedAction()
	}

	res, err := l.gateway.Execute(ctx, name, dec.Args, false)
	if err != nil {
		return stepResult{kind: resultError, tool: name, output: err.Error()}
	}
	switch res.Status {
	case gateway.StatusDenied:
		return stepResult{kind: resultError, tool: name, output: fmt.Sprintf("%s: %s", res.Reason, res.Message)}
	case gateway.StatusNeedsConfirm:
		st.Context.PendingConfirmation = &PendingConfirmation{Tool: res.Tool, Args: res.Args}
		st.Status = StatusWaitingUser
		st.Question = res.Message
		return stepResult{kind: resultNeedsConfirm, tool: name, output: res.Message}
	}
	return stepResult{kind: resultOK, tool: name, output: res.Output}
}

// record appends history, maintains the error counters, derives memory
// writes, and routes errors to the digest.
func (l *Loop) record(ctx context.Context, st *State, obs observation, dec *Decision, res stepResult, userResponse string) {
	now := l.now()

	action := dec.Type
	if dec.Tool != "" {
		action = dec.Tool
	}
	st.History = append(st.History, HistoryEntry{
		Step:        st.StepCount,
		Timestamp:   now,
		Observation: obs.summary,
		Decision:    DecisionSummary{Type: dec.Type, Tool: dec.Tool, Reasoning: dec.Reasoning},
		Action:      action,
		Result:      fmt.Sprintf("%s: %s", res.kind, truncate(res.output, 200)),
	})
	st.LastAction = action
	st.LastResult = fmt.Sprintf("%s: %s", res.kind, truncate(res.output, 200))

	switch res.kind {
	case resultError:
		st.recordError(action, res.output, now)
	case resultNeedsConfirm, resultNeedsPermission:
		// Neither a success nor a failure; the counter is left alone.
	default:
		st.ConsecutiveErrors = 0
	}

	writes := 0
	saveMemory := func(rec memory.Record) {
		if _, err := l.store.Save(ctx, rec); err != nil {
			slog.Warn("Memory derivation failed", "error", err)
			return
		}
		writes++
	}

	switch res.kind {
	case resultOK:
		saveMemory(memory.Record{
			Text:     fmt.Sprintf("Tool %s succeeded while working on %q: %s", res.tool, st.Goal, truncate(res.output, 200)),
			Type:     memory.TypeAgentAction,
			Priority: 3,
			Source:   memory.SourceSystem,
		})
	case resultStopped:
		if st.Status == StatusSuccess {
			saveMemory(memory.Record{
				Text:     fmt.Sprintf("Completed goal %q in %d steps: %s", st.Goal, st.StepCount, truncate(st.FinalResult, 200)),
				Type:     memory.TypeWorkflow,
				Priority: 4,
				Source:   memory.SourceSystem,
			})
		}
	case resultError:
		saveMemory(memory.Record{
			Text:     fmt.Sprintf("Tool %s failed while working on %q: %s", res.tool, st.Goal, truncate(res.output, 200)),
			Type:     memory.TypeWarning,
			Priority: 4,
			Source:   memory.SourceSystem,
		})
		if l.digest != nil {
			if _, err := l.digest.Enqueue(ctx, digest.Item{
				Domain:            assistantDomain,
				Trigger:           "followup",
				Title:             fmt.Sprintf("Tool error: %s", res.tool),
				Summary:           truncate(res.output, 300),
				Evidence:          fmt.Sprintf("run %s step %d", st.ID, st.StepCount),
				RecommendedAction: "review the failed step",
			}); err != nil {
				slog.Warn("Digest enqueue failed", "error", err)
			}
		}
		if l.classifier.IsDenial(res.output) {
			saveMemory(memory.Record{
				Text:     fmt.Sprintf("Blocked action: %s (%s)", res.tool, truncate(res.output, 200)),
				Type:     memory.TypeConstraint,
				Priority: 4,
				Source:   memory.SourceLearned,
				Tags:     []string{"auto_learn"},
			})
		}
	}

	if userResponse != "" && l.classifier.IsCorrection(userResponse) {
		saveMemory(memory.Record{
			Text:     userResponse,
			Type:     memory.TypeConstraint,
			Priority: 4,
			Source:   memory.SourceCorrection,
			Tags:     []string{"correction"},
		})
	}
	if writes > 0 {
		l.policy.RecordMemoryWrites(writes)
	}

	// The response was consumed by this step.
	if st.Context.UserResponse == userResponse {
		st.Context.UserResponse = ""
	}

	l.tracer.Publish(ctx, trace.StepEvent{
		RunID:      st.ID,
		Step:       st.StepCount,
		Decision:   dec.Type,
		Tool:       res.tool,
		ResultKind: string(res.kind),
		Error:      errorText(res),
		Timestamp:  now,
	})
	st.UpdatedAt = now
}

func errorText(res stepResult) string {
	if res.kind == resultError {
		return res.output
	}
	return ""
}

// deriveCategory maps a tool name onto a risk category for the policy
// gate.
func deriveCategory(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "exec") || strings.Contains(n, "shell") || strings.Contains(n, "command"):
		return "system_exec"
	case strings.Contains(n, "write") || strings.Contains(n, "delete") || strings.Contains(n, "move") || strings.Contains(n, "create"):
		return "filesystem_write"
	case strings.Contains(n, "generate") || strings.Contains(n, "document") || strings.Contains(n, "export") || strings.Contains(n, "report"):
		return "document_generation"
	default:
		return "general"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
