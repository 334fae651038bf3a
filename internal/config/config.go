// Package config provides configuration types and loading for sidekick.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Provider, Embedding, Agent, Autonomy, Worker,
// Digest, Notify, Trace.
type Config struct {
	Paths     PathsConfig     `json:"paths"`
	Provider  ProviderConfig  `json:"provider"`
	Embedding EmbeddingConfig `json:"embedding"`
	Agent     AgentConfig     `json:"agent"`
	Autonomy  AutonomyConfig  `json:"autonomy"`
	Worker    WorkerConfig    `json:"worker"`
	Digest    DigestConfig    `json:"digest"`
	Notify    NotifyConfig    `json:"notify"`
	Trace     TraceConfig     `json:"trace"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	DataDir    string `json:"dataDir" envconfig:"DATA_DIR"`
	Database   string `json:"database" envconfig:"DATABASE"`
	MemoryLog  string `json:"memoryLog" envconfig:"MEMORY_LOG"`
	DigestLog  string `json:"digestLog" envconfig:"DIGEST_LOG"`
	PolicyFile string `json:"policyFile" envconfig:"POLICY_FILE"`
}

// ---------------------------------------------------------------------------
// Provider – decision provider endpoint
// ---------------------------------------------------------------------------

// ProviderConfig contains settings for the decision provider.
type ProviderConfig struct {
	APIKey      string  `json:"apiKey" envconfig:"API_KEY"`
	APIBase     string  `json:"apiBase,omitempty" envconfig:"API_BASE"`
	Model       string  `json:"model" envconfig:"MODEL"`
	MaxTokens   int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature float64 `json:"temperature" envconfig:"TEMPERATURE"`
}

// EmbeddingConfig contains settings for the external embedding endpoint.
// When disabled (or on any failure) the local hashed embedder is used.
type EmbeddingConfig struct {
	Enabled bool   `json:"enabled" envconfig:"EMBEDDING_ENABLED"`
	APIKey  string `json:"apiKey" envconfig:"EMBEDDING_API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"EMBEDDING_API_BASE"`
	Model   string `json:"model" envconfig:"EMBEDDING_MODEL"`
}

// ---------------------------------------------------------------------------
// Agent – loop behaviour
// ---------------------------------------------------------------------------

// AgentConfig groups agent-loop settings.
type AgentConfig struct {
	StepLimit      int  `json:"stepLimit" envconfig:"STEP_LIMIT"`
	FactsOnly      bool `json:"factsOnly" envconfig:"FACTS_ONLY"`
	StateCacheSize int  `json:"stateCacheSize" envconfig:"STATE_CACHE_SIZE"`
}

// AutonomyConfig groups policy engine settings.
type AutonomyConfig struct {
	// Strict makes a policy document validation failure fatal.
	// Off in development: a warning is logged and defaults apply.
	Strict bool `json:"strict" envconfig:"AUTONOMY_STRICT"`
}

// ---------------------------------------------------------------------------
// Worker – external tool worker subprocess
// ---------------------------------------------------------------------------

// WorkerConfig contains settings for the external tool worker.
type WorkerConfig struct {
	Command        string        `json:"command" envconfig:"WORKER_COMMAND"`
	Args           []string      `json:"args"`
	CallTimeout    time.Duration `json:"callTimeout" envconfig:"WORKER_CALL_TIMEOUT"`
	RespawnBackoff time.Duration `json:"respawnBackoff" envconfig:"WORKER_RESPAWN_BACKOFF"`
}

// ---------------------------------------------------------------------------
// Digest – non-interruptive findings delivery
// ---------------------------------------------------------------------------

// DigestConfig contains digest queue settings.
type DigestConfig struct {
	MaxLogBytes    int64         `json:"maxLogBytes" envconfig:"DIGEST_MAX_LOG_BYTES"`
	MaxArchives    int           `json:"maxArchives" envconfig:"DIGEST_MAX_ARCHIVES"`
	NotifyInterval time.Duration `json:"notifyInterval" envconfig:"DIGEST_NOTIFY_INTERVAL"`
}

// NotifyConfig contains passive notification settings.
type NotifyConfig struct {
	Slack SlackNotifyConfig `json:"slack"`
}

// SlackNotifyConfig configures the Slack notifier.
type SlackNotifyConfig struct {
	Enabled bool   `json:"enabled" envconfig:"SLACK_ENABLED"`
	Token   string `json:"token" envconfig:"SLACK_TOKEN"`
	Channel string `json:"channel" envconfig:"SLACK_CHANNEL"`
}

// TraceConfig configures the optional step trace publisher.
type TraceConfig struct {
	Enabled bool     `json:"enabled" envconfig:"TRACE_ENABLED"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic" envconfig:"TRACE_TOPIC"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			APIBase:     "https://api.openai.com/v1",
			MaxTokens:   2048,
			Temperature: 0.2,
		},
		Embedding: EmbeddingConfig{
			Model: "text-embedding-3-small",
		},
		Agent: AgentConfig{
			StepLimit:      12,
			StateCacheSize: 100,
		},
		Worker: WorkerConfig{
			CallTimeout:    30 * time.Second,
			RespawnBackoff: 5 * time.Second,
		},
		Digest: DigestConfig{
			MaxLogBytes:    1 << 20,
			MaxArchives:    7,
			NotifyInterval: 15 * time.Minute,
		},
		Trace: TraceConfig{
			Topic: "sidekick.steps",
		},
	}
}
