package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sidekickd/sidekick/internal/provider"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(nil, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func mustSave(t *testing.T, s *Store, rec Record) *Record {
	t.Helper()
	saved, err := s.Save(context.Background(), rec)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	return saved
}

func TestSaveAssignsDefaultsAndClampsPriority(t *testing.T) {
	s := newTestStore(t)

	saved := mustSave(t, s, Record{Text: "the wifi password lives in the router drawer", Priority: 99})
	if saved.Priority != 5 {
		t.Fatalf("priority should clamp to 5, got %d", saved.Priority)
	}
	if saved.ID == "" || saved.CreatedAt.IsZero() {
		t.Fatalf("id and created_at should be assigned: %+v", saved)
	}
	if len(saved.Vector) != LocalDimensions {
		t.Fatalf("local embedding should have %d dims, got %d", LocalDimensions, len(saved.Vector))
	}

	saved = mustSave(t, s, Record{Text: "low", Priority: -3})
	if saved.Priority != 1 {
		t.Fatalf("priority should clamp to 1, got %d", saved.Priority)
	}
}

func TestSelfSimilarityRetrieval(t *testing.T) {
	s := newTestStore(t)
	text := "user prefers tea over coffee in the morning"
	saved := mustSave(t, s, Record{Text: text, Type: TypePreference})
	mustSave(t, s, Record{Text: "calendar sync runs at midnight", Type: TypeFact})
	mustSave(t, s, Record{Text: "thermostat api needs a token refresh weekly", Type: TypeFact})

	got, err := s.RetrieveRelevant(context.Background(), text, 2, Filters{})
	if err != nil {
		t.Fatalf("RetrieveRelevant: %v", err)
	}
	if len(got) == 0 || got[0].ID != saved.ID {
		t.Fatalf("storing then querying the same text must return that record first, got %+v", got)
	}
}

func TestRetrieveRespectsKAndFilters(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 10; i++ {
		mustSave(t, s, Record{Text: "shared office printer jams on envelopes", Type: TypeFact, Priority: 2})
	}
	mustSave(t, s, Record{Text: "shared office printer needs toner", Type: TypeWarning, Priority: 5, Tags: []string{"office"}})

	got, err := s.RetrieveRelevant(context.Background(), "office printer", 3, Filters{
		MinPriority: 2,
		Types:       []Type{TypeFact},
	})
	if err != nil {
		t.Fatalf("RetrieveRelevant: %v", err)
	}
	if len(got) > 3 {
		t.Fatalf("expected at most 3 results, got %d", len(got))
	}
	for _, r := range got {
		if r.Type != TypeFact {
			t.Fatalf("type filter violated: %+v", r)
		}
		if r.Priority < 2 {
			t.Fatalf("priority filter violated: %+v", r)
		}
	}
}

func TestRetrieveTagFilterRequiresAllTags(t *testing.T) {
	s := newTestStore(t)
	both := mustSave(t, s, Record{Text: "backup job config", Tags: []string{"backup", "cron"}})
	mustSave(t, s, Record{Text: "backup job notes", Tags: []string{"backup"}})

	got, err := s.RetrieveRelevant(context.Background(), "backup job", 10, Filters{Tags: []string{"backup", "cron"}})
	if err != nil {
		t.Fatalf("RetrieveRelevant: %v", err)
	}
	if len(got) != 1 || got[0].ID != both.ID {
		t.Fatalf("only the record with all tags should match, got %+v", got)
	}
}

func TestRetrieveRecencyFilter(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	mustSave(t, s, Record{Text: "old note about the garden sprinkler", CreatedAt: now.Add(-48 * time.Hour)})
	fresh := mustSave(t, s, Record{Text: "new note about the garden sprinkler", CreatedAt: now.Add(-time.Hour)})

	got, err := s.RetrieveRelevant(context.Background(), "garden sprinkler", 10, Filters{Recency: 24 * time.Hour})
	if err != nil {
		t.Fatalf("RetrieveRelevant: %v", err)
	}
	if len(got) != 1 || got[0].ID != fresh.ID {
		t.Fatalf("recency filter should keep only the fresh record, got %+v", got)
	}
}

func TestRetrieveTouchesLastUsed(t *testing.T) {
	s := newTestStore(t)
	saved := mustSave(t, s, Record{Text: "the dog vet is on maple street"})
	if saved.LastUsedAt != nil {
		t.Fatal("fresh record should have no last_used_at")
	}

	if _, err := s.RetrieveRelevant(context.Background(), "dog vet", 1, Filters{}); err != nil {
		t.Fatalf("RetrieveRelevant: %v", err)
	}
	if saved.LastUsedAt == nil {
		t.Fatal("retrieval must touch last_used_at")
	}
}

// brokenTouchBackend accepts writes but fails every last-used touch.
type brokenTouchBackend struct {
	records []*Record
}

func (b *brokenTouchBackend) Append(rec *Record) error {
	b.records = append(b.records, rec)
	return nil
}

func (b *brokenTouchBackend) TouchLastUsed(id string, ts time.Time) error {
	return errors.New("database is locked")
}

func (b *brokenTouchBackend) LoadAll() ([]*Record, error) { return b.records, nil }
func (b *brokenTouchBackend) Close() error                { return nil }

func TestRetrieveSurvivesTouchFailure(t *testing.T) {
	s, err := NewStore(&brokenTouchBackend{}, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	saved := mustSave(t, s, Record{Text: "the dentist office is on oak street"})

	got, err := s.RetrieveRelevant(context.Background(), "dentist office", 3, Filters{})
	if err != nil {
		t.Fatalf("RetrieveRelevant: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0] == nil {
		t.Fatal("a failed last-used touch must not drop the record")
	}
	if got[0].ID != saved.ID || got[0].LastUsedAt == nil {
		t.Fatalf("record should be returned with its in-memory touch applied: %+v", got[0])
	}
}

func TestPriorityBoostOrdersEqualSimilarity(t *testing.T) {
	s := newTestStore(t)
	low := mustSave(t, s, Record{Text: "weekly report template location", Priority: 1})
	high := mustSave(t, s, Record{Text: "weekly report template location", Priority: 5})

	got, err := s.RetrieveRelevant(context.Background(), "weekly report template location", 2, Filters{})
	if err != nil {
		t.Fatalf("RetrieveRelevant: %v", err)
	}
	if len(got) != 2 || got[0].ID != high.ID || got[1].ID != low.ID {
		t.Fatalf("higher priority should rank first on equal similarity, got %+v", got)
	}
}

func TestFormatForPromptEmpty(t *testing.T) {
	if out := FormatForPrompt(nil); out != "" {
		t.Fatalf("empty input must render the empty string, got %q", out)
	}
}

func TestFormatForPromptTagsTypes(t *testing.T) {
	out := FormatForPrompt([]*Record{
		{Type: TypePreference, Text: "answers in short sentences"},
		{Type: TypeConstraint, Text: "never email the old address"},
	})
	want := "- [preference] answers in short sentences\n- [constraint] never email the old address"
	if out != want {
		t.Fatalf("unexpected prompt block:\n%s", out)
	}
}

func TestBuildRetrievalQuery(t *testing.T) {
	q := BuildRetrievalQuery("organize photos", "list_dir", "ok: 14 entries")
	if q != "organize photos list_dir ok: 14 entries" {
		t.Fatalf("unexpected query: %q", q)
	}
	if q := BuildRetrievalQuery("goal only", "", "  "); q != "goal only" {
		t.Fatalf("blank parts should be dropped, got %q", q)
	}
}

func TestLocalEmbedderDeterministicAndNormalized(t *testing.T) {
	var e LocalEmbedder
	a, _ := e.Embed(context.Background(), &provider.EmbeddingRequest{Input: "tune the guitar before practice"})
	b, _ := e.Embed(context.Background(), &provider.EmbeddingRequest{Input: "tune the guitar before practice"})
	for i := range a.Vector {
		if a.Vector[i] != b.Vector[i] {
			t.Fatal("local embedder must be deterministic")
		}
	}

	var sum float64
	for _, x := range a.Vector {
		sum += float64(x) * float64(x)
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("vector should be L2-normalized, |v|^2=%v", sum)
	}
}

func TestLocalEmbedderDropsStopWords(t *testing.T) {
	var e LocalEmbedder
	a, _ := e.Embed(context.Background(), &provider.EmbeddingRequest{Input: "the guitar"})
	b, _ := e.Embed(context.Background(), &provider.EmbeddingRequest{Input: "guitar"})
	if cosineSimilarity(a.Vector, b.Vector) < 0.999 {
		t.Fatal("stop words should not change the vector")
	}
}
