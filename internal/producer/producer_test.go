package producer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/hottakes/config"
	"github.com/spacesedan/hottakes/internal/models"
	"github.com/spacesedan/hottakes/internal/uniqueness"
)

type scriptedGenerator struct {
	responses []string
	err       error
	calls     int
	temps     []float64
}

func (g *scriptedGenerator) Generate(ctx context.Context, req models.GenerationRequest) (string, error) {
	g.calls++
	g.temps = append(g.temps, req.Temperature)
	if g.err != nil {
		return "", g.err
	}
	i := g.calls - 1
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	return g.responses[i], nil
}

func newTestProducer(gen Generator) *Producer {
	cfg := config.Default()
	return New(cfg, gen, uniqueness.NewFilter(cfg, nil, nil), nil, nil)
}

func TestProduce_AcceptsValidCandidate(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"Breakfast food is the only food worth waking up for."}}
	p := newTestProducer(gen)

	take, err := p.Produce(context.Background(), "food", nil)
	require.NoError(t, err)

	assert.Equal(t, "food", take.Category)
	assert.Equal(t, models.StatusPending, take.Status)
	assert.True(t, take.IsGenerated)
	assert.Empty(t, take.ID, "id is assigned at publish time")
	assert.Equal(t, 1, gen.calls)
}

func TestProduce_RetriesOnBannedPhrase(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"Sure, here's a take: breakfast is great.",
		"Breakfast food is the only food worth waking up for.",
	}}
	p := newTestProducer(gen)

	take, err := p.Produce(context.Background(), "food", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)
	assert.NotContains(t, take.Text, "here's a take")
}

func TestProduce_TemperatureRampIsCapped(t *testing.T) {
	cfg := config.Default()
	cfg.MaxGenerationRetries = 5
	cfg.BaseTemperature = 1.0
	cfg.TemperatureStep = 0.2
	cfg.MaxTemperature = 1.3

	gen := &scriptedGenerator{responses: []string{"x"}} // always too short
	p := New(cfg, gen, uniqueness.NewFilter(cfg, nil, nil), nil, nil)

	_, err := p.Produce(context.Background(), "tech", nil)
	require.ErrorIs(t, err, ErrExhausted)

	require.Len(t, gen.temps, 5)
	assert.InDelta(t, 1.0, gen.temps[0], 1e-9)
	assert.InDelta(t, 1.2, gen.temps[1], 1e-9)
	for _, temp := range gen.temps {
		assert.LessOrEqual(t, temp, cfg.MaxTemperature)
	}
}

func TestProduce_ExhaustsOnProviderFailure(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("provider down")}
	p := newTestProducer(gen)

	_, err := p.Produce(context.Background(), "sports", nil)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, config.Default().MaxGenerationRetries, gen.calls)
}

func TestProduce_RejectsUnknownCategory(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"A perfectly fine take about nothing in particular."}}
	p := newTestProducer(gen)

	_, err := p.Produce(context.Background(), "astrology", nil)
	require.Error(t, err)
	assert.Zero(t, gen.calls, "no provider call for an invalid category")
}

// publishedSet is an in-memory stand-in for the published-fingerprint set.
type publishedSet struct {
	texts   map[string]struct{}
	lookups int
}

func (s *publishedSet) IsPublished(ctx context.Context, text string) bool {
	s.lookups++
	_, ok := s.texts[text]
	return ok
}

func TestProduce_RejectsPublishedFingerprint(t *testing.T) {
	published := &publishedSet{texts: map[string]struct{}{
		"Breakfast food is the only food worth waking up for.": {},
	}}
	gen := &scriptedGenerator{responses: []string{
		"Breakfast food is the only food worth waking up for.",
		"Brunch is just breakfast for people who cannot commit.",
	}}
	cfg := config.Default()
	p := New(cfg, gen, uniqueness.NewFilter(cfg, nil, nil), nil, published)

	take, err := p.Produce(context.Background(), "food", nil)
	require.NoError(t, err)
	assert.Equal(t, "Brunch is just breakfast for people who cannot commit.", take.Text)
	assert.Equal(t, 2, gen.calls)
	assert.Equal(t, 2, published.lookups)
}

// concurrentGenerator is safe to call from many goroutines, unlike
// scriptedGenerator, and hands every caller a distinct text.
type concurrentGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *concurrentGenerator) Generate(ctx context.Context, req models.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()
	return fmt.Sprintf("Opinion number %d about %s is the only correct one here.", n, req.Category), nil
}

func TestProduce_ConcurrentCategories(t *testing.T) {
	gen := &concurrentGenerator{}
	p := newTestProducer(gen)

	categories := []string{"food", "tech", "sports", "music"}
	var wg sync.WaitGroup
	errs := make(chan error, len(categories)*25)

	for _, category := range categories {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(category string) {
				defer wg.Done()
				_, err := p.Produce(context.Background(), category, nil)
				errs <- err
			}(category)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestPromptTable_ConcurrentPick(t *testing.T) {
	table := NewPromptTable(rand.New(rand.NewSource(11)))
	known := map[string]bool{"generic": true, "focused": true, "intense": true}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if !known[table.Pick().Name] {
					t.Error("Pick returned an unknown variant")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestProduce_RejectsLexicalDuplicates(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"Pineapple absolutely belongs on every single pizza ever made today",
	}}
	p := newTestProducer(gen)

	existing := []ExistingTake{
		{Text: "Pineapple absolutely belongs on every single pizza ever made today", Category: "food"},
	}

	_, err := p.Produce(context.Background(), "food", existing)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestCleanGeneratedText(t *testing.T) {
	cases := map[string]string{
		"```\nCats are overrated.\n```":  "Cats are overrated.",
		`"Cats are overrated."`:          "Cats are overrated.",
		"“Cats are overrated.”": "Cats are overrated.",
		"  Cats are overrated.  ":        "Cats are overrated.",
	}

	for input, want := range cases {
		assert.Equal(t, want, cleanGeneratedText(input))
	}
}

func TestValidateShape_Reasons(t *testing.T) {
	p := newTestProducer(&scriptedGenerator{})

	rej := p.validateShape("short")
	require.NotNil(t, rej)
	assert.Contains(t, rej.Reason, "too short")

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	rej = p.validateShape(string(long))
	require.NotNil(t, rej)
	assert.Contains(t, rej.Reason, "too long")

	rej = p.validateShape("As an AI, pineapple pizza is controversial.")
	require.NotNil(t, rej)
	assert.Contains(t, rej.Reason, "boilerplate")

	assert.Nil(t, p.validateShape("Pineapple pizza is the best pizza."))
}

func TestValidateSubmission_SurfacesReason(t *testing.T) {
	p := newTestProducer(&scriptedGenerator{})

	existing := []ExistingTake{
		{Text: "Remote work makes everyone measurably happier and more productive", Category: "work"},
	}

	err := p.ValidateSubmission(context.Background(), "Remote work makes everyone measurably happier and more productive", "work", existing)
	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "similar")
}

func TestValidateSubmission_RejectsUnknownCategory(t *testing.T) {
	p := newTestProducer(&scriptedGenerator{})

	err := p.ValidateSubmission(context.Background(), "A take that is long enough to pass shape checks.", "astrology", nil)
	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "unknown category")
}

func TestValidateSubmission_RejectsPublishedText(t *testing.T) {
	published := &publishedSet{texts: map[string]struct{}{
		"Remote work makes everyone measurably happier and more productive": {},
	}}
	cfg := config.Default()
	p := New(cfg, &scriptedGenerator{}, uniqueness.NewFilter(cfg, nil, nil), nil, published)

	err := p.ValidateSubmission(context.Background(), "Remote work makes everyone measurably happier and more productive", "work", nil)
	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "already been published")
}

func TestPromptTable_Weights(t *testing.T) {
	table := NewPromptTable(rand.New(rand.NewSource(7)))

	counts := map[string]int{}
	const draws = 20000
	for i := 0; i < draws; i++ {
		counts[table.Pick().Name]++
	}

	assert.InDelta(t, 0.45, float64(counts["generic"])/draws, 0.02)
	assert.InDelta(t, 0.45, float64(counts["focused"])/draws, 0.02)
	assert.InDelta(t, 0.10, float64(counts["intense"])/draws, 0.02)
}

func TestHeuristicScorer_Bounds(t *testing.T) {
	s := NewHeuristicScorer()

	texts := []string{
		"Terrible awful horrendous takes deserve to be loved anyway!",
		"ok",
		"A perfectly mild observation about sandwiches being food.",
	}
	for _, text := range texts {
		for attempt := 1; attempt <= 5; attempt++ {
			score := s.Score(text, attempt)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	}
}

func TestHeuristicScorer_PenalizesLaterAttempts(t *testing.T) {
	s := NewHeuristicScorer()
	text := "Pineapple pizza is a crime against Italian cooking and I will die on this hill!"

	assert.Greater(t, s.Score(text, 1), s.Score(text, 3))
}
