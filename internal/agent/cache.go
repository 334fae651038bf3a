package agent

import "sync"

// DefaultCacheSize bounds how many finished or paused states are kept.
const DefaultCacheSize = 100

// StateCache holds states between loop executions, evicting the oldest
// insertion when full. Safe for concurrent use.
type StateCache struct {
	mu       sync.Mutex
	capacity int
	states   map[string]*State
	order    []string
}

// NewStateCache creates a cache with the given capacity (default 100).
func NewStateCache(capacity int) *StateCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &StateCache{
		capacity: capacity,
		states:   make(map[string]*State),
	}
}

// Put stores a state, evicting the oldest entry when the cache is full.
// Re-putting an existing id keeps its original insertion slot.
func (c *StateCache) Put(st *State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.states[st.ID]; !ok {
		for len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.states, oldest)
		}
		c.order = append(c.order, st.ID)
	}
	c.states[st.ID] = st
}

// Get returns a cached state by id.
func (c *StateCache) Get(id string) (*State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[id]
	return st, ok
}

// Len returns the number of cached states.
func (c *StateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.states)
}
