package uniqueness

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/spacesedan/hottakes/config"
)

// Embedder turns text into a fixed-length vector. Implemented by the OpenAI
// client and the local ONNX embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbeddingCache is an optional cache in front of the embedder.
type EmbeddingCache interface {
	CachedEmbedding(ctx context.Context, text string) ([]float64, bool)
	CacheEmbedding(ctx context.Context, text string, vector []float64, ttl time.Duration) error
}

// Existing is a previously accepted take to compare against.
type Existing struct {
	Text     string
	Category string
}

// SemanticResult reports the outcome of an embedding similarity check.
type SemanticResult struct {
	Similar    bool
	Flagged    bool
	Similarity float64
}

// Filter performs lexical and semantic uniqueness checks.
type Filter struct {
	cfg      *config.Config
	embedder Embedder
	cache    EmbeddingCache
}

// NewFilter builds a Filter. cache may be nil.
func NewFilter(cfg *config.Config, embedder Embedder, cache EmbeddingCache) *Filter {
	return &Filter{cfg: cfg, embedder: embedder, cache: cache}
}

// CosineSimilarity is dot(a,b)/(|a||b|). Mismatched lengths or a
// zero-magnitude vector yield 0, which downstream reads as "unique" — the
// check degrades to allow rather than blocking content.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	normA := math.Sqrt(floats.Dot(a, a))
	normB := math.Sqrt(floats.Dot(b, b))
	if normA == 0 || normB == 0 {
		return 0
	}

	return floats.Dot(a, b) / (normA * normB)
}

// Embedding returns the vector for text, consulting the cache first.
func (f *Filter) Embedding(ctx context.Context, text string) ([]float64, error) {
	if f.embedder == nil {
		return nil, errors.New("[UniquenessFilter] no embedding provider configured")
	}
	if f.cache != nil {
		if vector, ok := f.cache.CachedEmbedding(ctx, text); ok {
			// A cached vector of the wrong length came from a different
			// embedding model; treat it as a miss and re-embed.
			if f.cfg.EmbeddingDim == 0 || len(vector) == f.cfg.EmbeddingDim {
				return vector, nil
			}
			slog.Warn("[UniquenessFilter] Discarding cached embedding with stale dimension",
				slog.Int("cached", len(vector)),
				slog.Int("expected", f.cfg.EmbeddingDim))
		}
	}

	vector, err := f.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if err := f.cache.CacheEmbedding(ctx, text, vector, f.cfg.EmbedCacheTTL); err != nil {
			slog.Warn("[UniquenessFilter] Failed to cache embedding",
				slog.String("error", err.Error()))
		}
	}
	return vector, nil
}

// CheckSemantic embeds the candidate and compares it against existing vectors.
// Similarity is the max across all comparisons. At or above the medium
// threshold the candidate is rejected; at or above the low threshold it is
// flagged but still allowed. Provider failure degrades to allow.
func (f *Filter) CheckSemantic(ctx context.Context, candidateText string, existingEmbeddings [][]float64) SemanticResult {
	if f.embedder == nil || len(existingEmbeddings) == 0 {
		return SemanticResult{}
	}

	candidate, err := f.Embedding(ctx, candidateText)
	if err != nil {
		slog.Warn("[UniquenessFilter] Embedding unavailable, allowing candidate",
			slog.String("error", err.Error()))
		return SemanticResult{}
	}

	maxSim := 0.0
	for _, existing := range existingEmbeddings {
		if sim := CosineSimilarity(candidate, existing); sim > maxSim {
			maxSim = sim
		}
	}

	result := SemanticResult{Similarity: maxSim}
	switch {
	case maxSim >= f.cfg.SimilarityHigh:
		result.Similar = true
		slog.Info("[UniquenessFilter] Rejecting near-duplicate candidate",
			slog.Float64("similarity", maxSim))
	case maxSim >= f.cfg.SimilarityMedium:
		result.Similar = true
	case maxSim >= f.cfg.SimilarityLow:
		result.Flagged = true
		slog.Warn("[UniquenessFilter] Candidate similar to existing content, allowing",
			slog.Float64("similarity", maxSim))
	}
	return result
}
