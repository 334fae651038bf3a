package tools

import "github.com/sidekickd/sidekick/internal/memory"

// DefaultRegistry returns a registry with the builtin tool set.
func DefaultRegistry(store *memory.Store) *Registry {
	r := NewRegistry()
	r.Register(&ListDirTool{})
	r.Register(&ReadFileTool{})
	r.Register(&WriteFileTool{})
	r.Register(&SystemInfoTool{})
	if store != nil {
		r.Register(&MemorySaveTool{Store: store})
		r.Register(&MemorySearchTool{Store: store})
	}
	return r
}

// DefaultToolNames returns the names of the builtin tools.
func DefaultToolNames() []string {
	return []string{
		"list_dir", "read_file", "write_file",
		"system_info", "memory_save", "memory_search",
	}
}
