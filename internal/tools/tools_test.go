package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sidekickd/sidekick/internal/memory"
)

func TestRegistryDefinitions(t *testing.T) {
	r := DefaultRegistry(nil)
	defs := r.Definitions()
	if len(defs) != 4 {
		t.Fatalf("expected 4 builtins without a store, got %d", len(defs))
	}
	for _, def := range defs {
		if def.Source != SourceBuiltin {
			t.Fatalf("builtin definition has source %q", def.Source)
		}
		if def.Name == "" || def.Description == "" {
			t.Fatalf("incomplete definition: %+v", def)
		}
	}
}

func TestDefaultRegistryWithStore(t *testing.T) {
	store, err := memory.NewStore(nil, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	r := DefaultRegistry(store)
	for _, name := range DefaultToolNames() {
		if _, ok := r.Get(name); !ok {
			t.Fatalf("tool %s missing from default registry", name)
		}
	}
}

func TestListDirTool(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "a"), 0o755); err != nil {
		t.Fatal(err)
	}

	tool := &ListDirTool{}
	out, err := tool.Execute(context.Background(), map[string]any{"path": dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "a/\nb.txt" {
		t.Fatalf("unexpected listing: %q", out)
	}

	out, _ = tool.Execute(context.Background(), map[string]any{"path": filepath.Join(dir, "missing")})
	if !strings.HasPrefix(out, "Error: directory not found") {
		t.Fatalf("missing dir should report a friendly error, got %q", out)
	}
}

func TestReadWriteFileTools(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "note.txt")

	write := &WriteFileTool{}
	out, err := write.Execute(context.Background(), map[string]any{"path": path, "content": "hello"})
	if err != nil {
		t.Fatalf("write Execute: %v", err)
	}
	if !strings.Contains(out, "5 bytes") {
		t.Fatalf("unexpected write result: %q", out)
	}

	read := &ReadFileTool{}
	out, err = read.Execute(context.Background(), map[string]any{"path": path})
	if err != nil {
		t.Fatalf("read Execute: %v", err)
	}
	if out != "hello" {
		t.Fatalf("unexpected file content: %q", out)
	}

	out, _ = read.Execute(context.Background(), map[string]any{"path": filepath.Join(dir, "missing.txt")})
	if !strings.HasPrefix(out, "Error: file not found") {
		t.Fatalf("missing file should report a friendly error, got %q", out)
	}
}

func TestSystemInfoTool(t *testing.T) {
	tool := &SystemInfoTool{}
	out, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "os: ") || !strings.Contains(out, "arch: ") {
		t.Fatalf("unexpected system info: %q", out)
	}
}

func TestMemoryTools(t *testing.T) {
	store, err := memory.NewStore(nil, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	save := &MemorySaveTool{Store: store}
	out, err := save.Execute(context.Background(), map[string]any{
		"text":     "the house plants get watered on fridays",
		"type":     "workflow",
		"priority": 4,
		"tags":     "home, plants",
	})
	if err != nil {
		t.Fatalf("save Execute: %v", err)
	}
	if !strings.Contains(out, "workflow") {
		t.Fatalf("unexpected save result: %q", out)
	}
	if store.Len() != 1 {
		t.Fatalf("store should hold 1 record, got %d", store.Len())
	}

	search := &MemorySearchTool{Store: store}
	out, err = search.Execute(context.Background(), map[string]any{"query": "watering house plants"})
	if err != nil {
		t.Fatalf("search Execute: %v", err)
	}
	if !strings.Contains(out, "house plants") {
		t.Fatalf("search should surface the saved record, got %q", out)
	}

	out, _ = search.Execute(context.Background(), map[string]any{"query": ""})
	if !strings.HasPrefix(out, "Error: query is required") {
		t.Fatalf("blank query should report a friendly error, got %q", out)
	}
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{"s": "v", "n": float64(7), "b": true}
	if GetString(args, "s", "") != "v" || GetString(args, "x", "d") != "d" {
		t.Fatal("GetString mismatch")
	}
	if GetInt(args, "n", 0) != 7 || GetInt(args, "x", 3) != 3 {
		t.Fatal("GetInt mismatch")
	}
	if !GetBool(args, "b", false) || GetBool(args, "x", false) {
		t.Fatal("GetBool mismatch")
	}
	if Confirmed(map[string]any{"confirm": true}) != true || Confirmed(map[string]any{}) {
		t.Fatal("Confirmed mismatch")
	}
}
