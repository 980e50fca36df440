package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/spacesedan/hottakes/config"
	"github.com/spacesedan/hottakes/internal/models"
	"github.com/spacesedan/hottakes/internal/uniqueness"
)

// ErrExhausted means no acceptable candidate was produced within the retry
// budget. Callers treat it as "this category gets nothing this cycle", never
// as a pipeline failure.
var ErrExhausted = errors.New("[CandidateProducer] retry budget exhausted")

// Generator is the external text-generation collaborator.
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest) (string, error)
}

// Fingerprints answers whether an exact text has already been published. It is
// consulted before the embedding round trip, so an exact repeat costs one set
// lookup instead of a provider call.
type Fingerprints interface {
	IsPublished(ctx context.Context, text string) bool
}

// ExistingTake is accepted content the candidate must differ from.
type ExistingTake struct {
	Text      string
	Category  string
	Embedding []float64
}

// Producer retries generation against the uniqueness filter until a candidate
// is accepted or the attempt budget runs out.
type Producer struct {
	cfg          *config.Config
	gen          Generator
	filter       *uniqueness.Filter
	prompts      *PromptTable
	scorer       Scorer
	fingerprints Fingerprints
}

func New(cfg *config.Config, gen Generator, filter *uniqueness.Filter, scorer Scorer, fingerprints Fingerprints) *Producer {
	if scorer == nil {
		scorer = NewHeuristicScorer()
	}
	return &Producer{
		cfg:          cfg,
		gen:          gen,
		filter:       filter,
		prompts:      NewPromptTable(rand.New(rand.NewSource(time.Now().UnixNano()))),
		scorer:       scorer,
		fingerprints: fingerprints,
	}
}

// Produce generates one accepted, unpublished take for category. Each failed
// attempt bumps the sampling temperature, capped at the configured maximum.
func (p *Producer) Produce(ctx context.Context, category string, existing []ExistingTake) (*models.Take, error) {
	if !models.IsValidCategory(category) {
		return nil, fmt.Errorf("[CandidateProducer] unknown category %q", category)
	}

	lexical, embeddings := splitExisting(existing)

	for attempt := 1; attempt <= p.cfg.MaxGenerationRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		temperature := p.cfg.BaseTemperature + p.cfg.TemperatureStep*float64(attempt-1)
		if temperature > p.cfg.MaxTemperature {
			temperature = p.cfg.MaxTemperature
		}

		variant := p.prompts.Pick()
		raw, err := p.gen.Generate(ctx, models.GenerationRequest{
			Category:    category,
			Prompt:      variant.System,
			Temperature: temperature,
		})
		if err != nil {
			slog.Warn("[CandidateProducer] Generation attempt failed",
				slog.String("category", category),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			continue
		}

		text := cleanGeneratedText(raw)

		if rej := p.validateShape(text); rej != nil {
			slog.Info("[CandidateProducer] Candidate failed shape validation",
				slog.String("category", category),
				slog.Int("attempt", attempt),
				slog.String("reason", rej.Reason))
			continue
		}

		if p.fingerprints != nil && p.fingerprints.IsPublished(ctx, text) {
			slog.Info("[CandidateProducer] Candidate matches a published fingerprint",
				slog.String("category", category),
				slog.Int("attempt", attempt))
			continue
		}

		if !p.filter.IsUnique(text, category, lexical) {
			slog.Info("[CandidateProducer] Candidate rejected by lexical overlap",
				slog.String("category", category),
				slog.Int("attempt", attempt))
			continue
		}

		if res := p.filter.CheckSemantic(ctx, text, embeddings); res.Similar {
			slog.Info("[CandidateProducer] Candidate rejected by semantic similarity",
				slog.String("category", category),
				slog.Int("attempt", attempt),
				slog.Float64("similarity", res.Similarity))
			continue
		}

		take := &models.Take{
			Text:        text,
			Category:    category,
			CreatedAt:   time.Now(),
			Status:      models.StatusPending,
			IsGenerated: true,
			Confidence:  p.scorer.Score(text, attempt),
		}

		// The semantic pass warmed the cache, so this is a cheap second
		// read; a failure just leaves the take without a stored vector.
		if vector, err := p.filter.Embedding(ctx, text); err == nil {
			take.Embedding = vector
		}

		slog.Info("[CandidateProducer] Candidate accepted",
			slog.String("category", category),
			slog.Int("attempt", attempt),
			slog.String("variant", variant.Name))
		return take, nil
	}

	return nil, ErrExhausted
}

// cleanGeneratedText strips markdown fences, wrapping quotes and stray
// whitespace from a model response.
func cleanGeneratedText(response string) string {
	cleaned := strings.TrimSpace(response)

	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	cleaned = strings.ReplaceAll(cleaned, "“", `"`)
	cleaned = strings.ReplaceAll(cleaned, "”", `"`)
	cleaned = strings.Trim(cleaned, `"`)

	return strings.TrimSpace(cleaned)
}

func splitExisting(existing []ExistingTake) ([]uniqueness.Existing, [][]float64) {
	lexical := make([]uniqueness.Existing, 0, len(existing))
	var embeddings [][]float64
	for _, e := range existing {
		lexical = append(lexical, uniqueness.Existing{Text: e.Text, Category: e.Category})
		if len(e.Embedding) > 0 {
			embeddings = append(embeddings, e.Embedding)
		}
	}
	return lexical, embeddings
}

// FromTakes adapts stored takes into the comparison shape Produce expects.
func FromTakes(takes []models.Take) []ExistingTake {
	existing := make([]ExistingTake, 0, len(takes))
	for _, t := range takes {
		existing = append(existing, ExistingTake{
			Text:      t.Text,
			Category:  t.Category,
			Embedding: t.Embedding,
		})
	}
	return existing
}
