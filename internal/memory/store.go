package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sidekickd/sidekick/internal/provider"
)

// Scoring adjustments applied on top of cosine similarity.
const (
	neutralPriority    = 3
	priorityBoostStep  = 0.10 // per point of deviation from neutral
	recentUseBoost     = 0.10 // used within the last hour
	preferenceBoost    = 0.15 // preference/constraint records
	workflowBoost      = 0.10
	recentUseWindow    = time.Hour
	DefaultMinPriority = 2
	DefaultTopK        = 8
)

// Backend persists records. The store keeps the authoritative in-memory
// index; the backend is write-through storage plus startup load.
type Backend interface {
	Append(rec *Record) error
	TouchLastUsed(id string, t time.Time) error
	LoadAll() ([]*Record, error)
	Close() error
}

// Store is the process-wide memory index. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	embedder provider.Embedder
	backend  Backend
	index    []*Record
	now      func() time.Time
}

// NewStore loads the backend into the in-memory index. A nil embedder
// means local-only embedding.
func NewStore(backend Backend, embedder provider.Embedder) (*Store, error) {
	if embedder == nil {
		embedder = &FallbackEmbedder{}
	}
	s := &Store{
		embedder: embedder,
		backend:  backend,
		now:      time.Now,
	}
	if backend != nil {
		records, err := backend.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("load memory index: %w", err)
		}
		s.index = records
	}
	return s, nil
}

// SetClock overrides the wall clock. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Len returns the number of indexed records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Save clamps, defaults, embeds, persists, and indexes a record. The index
// is updated synchronously before returning.
func (s *Store) Save(ctx context.Context, rec Record) (*Record, error) {
	if rec.Priority < 1 {
		rec.Priority = 1
	}
	if rec.Priority > 5 {
		rec.Priority = 5
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock()
	}
	if rec.Type == "" {
		rec.Type = TypeFact
	}
	if rec.Source == "" {
		rec.Source = SourceLearned
	}
	if len(rec.Vector) == 0 {
		resp, err := s.embedder.Embed(ctx, &provider.EmbeddingRequest{Input: rec.Text})
		if err != nil {
			return nil, fmt.Errorf("embed record: %w", err)
		}
		rec.Vector = resp.Vector
	}

	if s.backend != nil {
		if err := s.backend.Append(&rec); err != nil {
			return nil, fmt.Errorf("persist record: %w", err)
		}
	}

	s.mu.Lock()
	s.index = append(s.index, &rec)
	s.mu.Unlock()
	return &rec, nil
}

// RetrieveRelevant embeds the query, filters the index, scores survivors by
// adjusted cosine similarity, and returns the top k. Each returned record's
// LastUsedAt is touched as a side effect.
func (s *Store) RetrieveRelevant(ctx context.Context, query string, k int, filters Filters) ([]*Record, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	resp, err := s.embedder.Embed(ctx, &provider.EmbeddingRequest{Input: query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	type scored struct {
		rec   *Record
		score float32
	}
	var candidates []scored
	for _, r := range s.index {
		if !filters.allows(r, now) {
			continue
		}
		candidates = append(candidates, scored{rec: r, score: s.adjustedScore(r, resp.Vector, now)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]*Record, len(candidates))
	for i, c := range candidates {
		touched := now
		c.rec.LastUsedAt = &touched
		out[i] = c.rec
		if s.backend != nil {
			if err := s.backend.TouchLastUsed(c.rec.ID, touched); err != nil {
				// Best-effort touch; retrieval still returns the record.
				slog.Warn("Memory last-used touch failed", "id", c.rec.ID, "error", err)
			}
		}
	}
	return out, nil
}

func (s *Store) adjustedScore(r *Record, query []float32, now time.Time) float32 {
	score := cosineSimilarity(query, r.Vector)

	score *= 1 + priorityBoostStep*float32(r.Priority-neutralPriority)

	if r.LastUsedAt != nil && now.Sub(*r.LastUsedAt) <= recentUseWindow {
		score *= 1 + recentUseBoost
	}

	switch r.Type {
	case TypePreference, TypeConstraint:
		score *= 1 + preferenceBoost
	case TypeWorkflow:
		score *= 1 + workflowBoost
	}
	return score
}

func (s *Store) clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now()
}

// Close releases the backend.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}
