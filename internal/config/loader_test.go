package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("a missing config file is not an error: %v", err)
	}
	if cfg.Agent.StepLimit != 12 {
		t.Fatalf("default step limit expected, got %d", cfg.Agent.StepLimit)
	}
	if cfg.Digest.MaxArchives != 7 || cfg.Digest.NotifyInterval != 15*time.Minute {
		t.Fatalf("digest defaults expected: %+v", cfg.Digest)
	}
}

func TestLoadFromFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"agent":{"stepLimit":5,"factsOnly":true},"provider":{"model":"gpt-4o-mini"}}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Agent.StepLimit != 5 || !cfg.Agent.FactsOnly {
		t.Fatalf("file values not applied: %+v", cfg.Agent)
	}
	if cfg.Provider.Model != "gpt-4o-mini" {
		t.Fatalf("provider model not applied: %q", cfg.Provider.Model)
	}
}

func TestEnvOverrideWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"agent":{"stepLimit":5}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SIDEKICK_STEP_LIMIT", "7")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Agent.StepLimit != 7 {
		t.Fatalf("environment must win over the file, got %d", cfg.Agent.StepLimit)
	}
}

func TestPathDefaultsDeriveFromDataDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"paths":{"dataDir":"`+dir+`"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Paths.Database != filepath.Join(dir, "sidekick.db") {
		t.Fatalf("database path not derived: %q", cfg.Paths.Database)
	}
	if cfg.Paths.PolicyFile != filepath.Join(dir, "policy.json") {
		t.Fatalf("policy path not derived: %q", cfg.Paths.PolicyFile)
	}
}

func TestConfigPathHonorsExplicitEnv(t *testing.T) {
	t.Setenv("SIDEKICK_CONFIG", "/tmp/custom/sidekick.json")
	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath: %v", err)
	}
	if path != "/tmp/custom/sidekick.json" {
		t.Fatalf("explicit config path ignored: %q", path)
	}
}

func TestConfigPathHonorsHomeOverride(t *testing.T) {
	t.Setenv("SIDEKICK_CONFIG", "")
	t.Setenv("SIDEKICK_HOME", "/srv/sidekick-home")
	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath: %v", err)
	}
	if path != filepath.Join("/srv/sidekick-home", ConfigDir, ConfigFile) {
		t.Fatalf("home override ignored: %q", path)
	}
}
