package memory

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/sidekickd/sidekick/internal/provider"
)

// LocalDimensions is the fixed dimensionality of the local fallback embedder.
const LocalDimensions = 256

// stopWords are dropped before hashing. Small on purpose: the local embedder
// only needs rough lexical overlap, not linguistic precision.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "he": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "this": true, "to": true, "was": true, "were": true,
	"will": true, "with": true, "you": true, "your": true, "i": true,
	"me": true, "my": true, "we": true, "do": true, "not": true, "so": true,
}

// LocalEmbedder produces a normalized hashed bag-of-words vector. It is
// deterministic and needs no network access.
type LocalEmbedder struct{}

// Embed hashes each non-stop-word token into a fixed-size vector and
// L2-normalizes the result.
func (LocalEmbedder) Embed(ctx context.Context, req *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	vec := make([]float32, LocalDimensions)
	for _, tok := range tokenize(req.Input) {
		if stopWords[tok] {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%LocalDimensions]++
	}
	normalize(vec)
	return &provider.EmbeddingResponse{Vector: vec}, nil
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

// FallbackEmbedder tries an external embedder first and falls back to the
// local one on any failure. External is optional; nil means local only.
type FallbackEmbedder struct {
	External provider.Embedder
	Local    LocalEmbedder
}

// Embed returns the external vector when available, the local vector
// otherwise. External failures are logged, never surfaced.
func (f *FallbackEmbedder) Embed(ctx context.Context, req *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	if f.External != nil {
		resp, err := f.External.Embed(ctx, req)
		if err == nil && resp != nil && len(resp.Vector) > 0 {
			return resp, nil
		}
		if err != nil {
			slog.Warn("External embedding failed, using local fallback", "error", err)
		}
	}
	return f.Local.Embed(ctx, req)
}

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
