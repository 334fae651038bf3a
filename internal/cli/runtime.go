package cli

import (
	"fmt"
	"log/slog"

	"github.com/sidekickd/sidekick/internal/agent"
	"github.com/sidekickd/sidekick/internal/autonomy"
	"github.com/sidekickd/sidekick/internal/config"
	"github.com/sidekickd/sidekick/internal/digest"
	"github.com/sidekickd/sidekick/internal/gateway"
	"github.com/sidekickd/sidekick/internal/memory"
	"github.com/sidekickd/sidekick/internal/notify"
	"github.com/sidekickd/sidekick/internal/provider"
	"github.com/sidekickd/sidekick/internal/tools"
	"github.com/sidekickd/sidekick/internal/trace"
	"github.com/sidekickd/sidekick/internal/worker"
)

// runtime wires the shared subsystems for one CLI invocation.
type runtime struct {
	cfg    *config.Config
	store  *memory.Store
	policy *autonomy.Engine
	loop   *agent.Loop
	queue  *digest.Queue

	workerClient *worker.Client
	recorder     *digest.SQLiteRecorder
	states       *agent.SQLiteStateStore
	tracer       trace.Publisher
	notifier     notify.Notifier
}

// buildRuntime loads configuration and assembles the subsystems.
func buildRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.EnsureDataDir(cfg); err != nil {
		return nil, err
	}

	doc, err := autonomy.LoadDocument(cfg.Paths.PolicyFile, cfg.Autonomy.Strict)
	if err != nil {
		return nil, err
	}
	policy := autonomy.NewEngine(doc)

	var embedder provider.Embedder
	if cfg.Embedding.Enabled {
		ext := provider.NewOpenAIProvider(cfg.Embedding.APIKey, cfg.Embedding.APIBase, cfg.Embedding.Model)
		embedder = &memory.FallbackEmbedder{External: ext}
	}
	backend, err := memory.OpenBackend(cfg.Paths.Database, cfg.Paths.MemoryLog)
	if err != nil {
		return nil, fmt.Errorf("open memory backend: %w", err)
	}
	store, err := memory.NewStore(backend, embedder)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, store: store, policy: policy, tracer: trace.NopPublisher{}}

	var external gateway.ExternalSource
	if cfg.Worker.Command != "" {
		client := worker.NewClient(
			&worker.SubprocessTransport{Command: cfg.Worker.Command, Args: cfg.Worker.Args},
			cfg.Worker.CallTimeout,
			cfg.Worker.RespawnBackoff,
		)
		if err := client.Start(); err != nil {
			slog.Warn("Worker unavailable, builtin tools only", "error", err)
		} else {
			rt.workerClient = client
			external = client
		}
	}
	gw := gateway.New(tools.DefaultRegistry(store), external)

	rt.notifier = notify.LogNotifier{}
	if cfg.Notify.Slack.Enabled {
		rt.notifier = notify.NewSlackNotifier(cfg.Notify.Slack.Token, cfg.Notify.Slack.Channel)
	}
	rt.queue = digest.NewQueue(cfg.Paths.DigestLog,
		digest.WithNotifier(rt.notifier),
		digest.WithQuietHours(doc.QuietHours.Contains),
		digest.WithRotation(cfg.Digest.MaxLogBytes, cfg.Digest.MaxArchives),
		digest.WithNotifyInterval(cfg.Digest.NotifyInterval),
	)
	if rec, err := digest.OpenSQLiteRecorder(cfg.Paths.Database); err == nil {
		rt.recorder = rec
	} else {
		slog.Warn("Digest delivery log unavailable", "error", err)
	}
	if states, err := agent.OpenSQLiteStateStore(cfg.Paths.Database); err == nil {
		rt.states = states
	} else {
		slog.Warn("Run persistence unavailable, resume limited to this process", "error", err)
	}

	if cfg.Trace.Enabled && len(cfg.Trace.Brokers) > 0 {
		rt.tracer = trace.NewKafkaPublisher(cfg.Trace.Brokers, cfg.Trace.Topic)
	}

	prov := provider.NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Provider.Model)
	loopOpts := agent.Options{
		Digest:    rt.queue,
		Tracer:    rt.tracer,
		Cache:     agent.NewStateCache(cfg.Agent.StateCacheSize),
		FactsOnly: cfg.Agent.FactsOnly,
	}
	if rt.states != nil {
		loopOpts.States = rt.states
	}
	rt.loop = agent.New(prov, store, policy, gw, loopOpts)
	return rt, nil
}

// scheduler builds the daily digest scheduler for long-running commands.
func (rt *runtime) scheduler() *digest.Scheduler {
	var rec digest.Recorder
	if rt.recorder != nil {
		rec = rt.recorder
	}
	return digest.NewScheduler(rt.queue, rec, rt.notifier, func() string {
		return rt.policy.Document().DigestTime
	})
}

// Close releases the runtime's resources.
func (rt *runtime) Close() {
	if rt.workerClient != nil {
		rt.workerClient.Close()
	}
	if rt.recorder != nil {
		rt.recorder.Close()
	}
	if rt.states != nil {
		rt.states.Close()
	}
	if rt.tracer != nil {
		rt.tracer.Close()
	}
	rt.store.Close()
}
