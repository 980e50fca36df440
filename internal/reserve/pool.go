package reserve

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/spacesedan/hottakes/config"
	"github.com/spacesedan/hottakes/internal/models"
	"github.com/spacesedan/hottakes/internal/producer"
)

// CandidateSource produces accepted, unpublished takes.
type CandidateSource interface {
	Produce(ctx context.Context, category string, existing []producer.ExistingTake) (*models.Take, error)
}

// TakeSource supplies recently published takes for uniqueness comparison.
type TakeSource interface {
	RecentTakes(ctx context.Context, category string, limit int) ([]models.Take, error)
}

const recentComparisonLimit = 50

// Manager owns the per-category reserve pools and drives replenishment under
// cooldown and circuit-breaker control. All pool state lives on the instance;
// construct one per process (or per test).
type Manager struct {
	cfg      *config.Config
	producer CandidateSource
	store    TakeSource

	mu     sync.Mutex
	pools  map[string][]models.ReserveEntry
	states map[string]*models.CategoryReplenishState

	rng *rand.Rand
	now func() time.Time
}

func NewManager(cfg *config.Config, candidates CandidateSource, store TakeSource) *Manager {
	return &Manager{
		cfg:      cfg,
		producer: candidates,
		store:    store,
		pools:    make(map[string][]models.ReserveEntry),
		states:   make(map[string]*models.CategoryReplenishState),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

// stateFor lazily creates replenish state. Caller holds m.mu.
func (m *Manager) stateFor(category string) *models.CategoryReplenishState {
	state, ok := m.states[category]
	if !ok {
		state = &models.CategoryReplenishState{}
		m.states[category] = state
	}
	return state
}

// PoolSize reports the current queue length for a category.
func (m *Manager) PoolSize(category string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pools[category])
}

// Categories lists every category whose pool has been touched.
func (m *Manager) Categories() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.pools))
	for c := range m.pools {
		out = append(out, c)
	}
	return out
}

// GetReserve pops up to count entries FIFO. An empty pool falls back to
// bounded on-demand generation so callers only ever see zero content when the
// provider itself is failing. Consumed entries leave the pool permanently.
func (m *Manager) GetReserve(ctx context.Context, category string, count int) []models.ReserveEntry {
	m.mu.Lock()
	m.stateFor(category)
	entries := m.popLocked(category, count)
	m.mu.Unlock()

	if len(entries) == 0 {
		entries = m.generateOnDemand(ctx, category, count)
	}

	if m.PoolSize(category) < m.cfg.MinThreshold {
		go m.MaybeReplenish(context.WithoutCancel(ctx), category)
	}
	return entries
}

// GetReserveMixed draws count entries across every already-initialized
// category. Each draw pops the front of a randomly chosen non-empty queue, so
// no entry can be handed out twice and per-category order is preserved.
func (m *Manager) GetReserveMixed(ctx context.Context, count int) []models.ReserveEntry {
	m.mu.Lock()
	var entries []models.ReserveEntry
	for len(entries) < count {
		var nonEmpty []string
		for c, pool := range m.pools {
			if len(pool) > 0 {
				nonEmpty = append(nonEmpty, c)
			}
		}
		if len(nonEmpty) == 0 {
			break
		}
		category := nonEmpty[m.rng.Intn(len(nonEmpty))]
		entries = append(entries, m.popLocked(category, 1)...)
	}

	var drained []string
	for c, pool := range m.pools {
		if len(pool) < m.cfg.MinThreshold {
			drained = append(drained, c)
		}
	}
	m.mu.Unlock()

	for _, category := range drained {
		go m.MaybeReplenish(context.WithoutCancel(ctx), category)
	}
	return entries
}

// popLocked splices up to count entries off the front of a queue. Caller
// holds m.mu.
func (m *Manager) popLocked(category string, count int) []models.ReserveEntry {
	pool := m.pools[category]
	if len(pool) == 0 {
		// Registers the category as initialized even when empty.
		if _, ok := m.pools[category]; !ok {
			m.pools[category] = nil
		}
		return nil
	}

	if count > len(pool) {
		count = len(pool)
	}
	entries := make([]models.ReserveEntry, count)
	copy(entries, pool[:count])
	m.pools[category] = pool[count:]
	return entries
}

// generateOnDemand is the synchronous fallback for an exhausted pool. It stops
// at the first producer failure so a dead provider is hit at most one retry
// budget per call.
func (m *Manager) generateOnDemand(ctx context.Context, category string, count int) []models.ReserveEntry {
	if count > m.cfg.OnDemandLimit {
		count = m.cfg.OnDemandLimit
	}

	existing := m.comparisonSet(ctx, category)
	var entries []models.ReserveEntry
	for i := 0; i < count; i++ {
		take, err := m.producer.Produce(ctx, category, existing)
		if err != nil {
			if !errors.Is(err, producer.ErrExhausted) {
				slog.Warn("[ReservePool] On-demand generation failed",
					slog.String("category", category),
					slog.String("error", err.Error()))
			}
			break
		}
		entries = append(entries, models.ReserveEntry{
			Take:        *take,
			Category:    category,
			GeneratedAt: m.now(),
		})
		existing = append(existing, producer.ExistingTake{
			Text:      take.Text,
			Category:  category,
			Embedding: take.Embedding,
		})
	}

	if len(entries) > 0 {
		slog.Info("[ReservePool] Served on-demand generated takes",
			slog.String("category", category),
			slog.Int("count", len(entries)))
	} else {
		// A dead provider already burned one retry budget; count it so the
		// background path backs off instead of hammering the provider again.
		m.mu.Lock()
		state := m.stateFor(category)
		state.AttemptCount++
		state.LastReplenishedAt = m.now()
		m.mu.Unlock()
	}
	return entries
}

// MaybeReplenish tops a category back up toward the target pool size. Guarded
// three ways: a per-category replenishing latch, a cooldown scaled by the
// decaying attempt counter, and the attempt-count circuit breaker.
func (m *Manager) MaybeReplenish(ctx context.Context, category string) {
	m.mu.Lock()
	state := m.stateFor(category)

	if len(m.pools[category]) >= m.cfg.MinThreshold {
		m.mu.Unlock()
		return
	}
	if state.IsReplenishing {
		m.mu.Unlock()
		return
	}

	now := m.now()

	// Attempts decay after a quiet period so a category is never blacklisted
	// for good.
	if state.AttemptCount > 0 && now.Sub(state.LastReplenishedAt) >= m.cfg.AttemptDecayAfter {
		state.AttemptCount /= 2
	}

	if state.AttemptCount >= m.cfg.MaxReplenishAttempts {
		slog.Warn("[ReservePool] Circuit breaker open, skipping replenishment",
			slog.String("category", category),
			slog.Int("attempts", state.AttemptCount))
		m.mu.Unlock()
		return
	}

	cooldown := m.cfg.CooldownBase * time.Duration(1+state.AttemptCount)
	if !state.LastReplenishedAt.IsZero() && now.Sub(state.LastReplenishedAt) < cooldown {
		m.mu.Unlock()
		return
	}

	state.IsReplenishing = true
	state.AttemptCount++
	state.LastReplenishedAt = now

	need := m.cfg.TargetPoolSize - len(m.pools[category])
	if need > m.cfg.ReplenishBatchSize {
		need = m.cfg.ReplenishBatchSize
	}
	m.mu.Unlock()

	produced := m.produceBatch(ctx, category, need)

	m.mu.Lock()
	m.pools[category] = append(m.pools[category], produced...)
	if len(m.pools[category]) >= m.cfg.MinThreshold {
		state.AttemptCount = 0
	}
	state.IsReplenishing = false
	size := len(m.pools[category])
	m.mu.Unlock()

	slog.Info("[ReservePool] Replenishment run finished",
		slog.String("category", category),
		slog.Int("produced", len(produced)),
		slog.Int("pool_size", size))
}

func (m *Manager) produceBatch(ctx context.Context, category string, need int) []models.ReserveEntry {
	existing := m.comparisonSet(ctx, category)

	var produced []models.ReserveEntry
	for i := 0; i < need; i++ {
		take, err := m.producer.Produce(ctx, category, existing)
		if err != nil {
			if errors.Is(err, producer.ErrExhausted) {
				slog.Info("[ReservePool] Producer exhausted retries",
					slog.String("category", category))
			} else {
				slog.Warn("[ReservePool] Replenishment generation failed",
					slog.String("category", category),
					slog.String("error", err.Error()))
			}
			break
		}
		produced = append(produced, models.ReserveEntry{
			Take:        *take,
			Category:    category,
			GeneratedAt: m.now(),
		})
		existing = append(existing, producer.ExistingTake{
			Text:      take.Text,
			Category:  category,
			Embedding: take.Embedding,
		})
	}
	return produced
}

// comparisonSet assembles the uniqueness baseline: recent published takes
// plus whatever is sitting in the pool right now. A store failure degrades to
// pool-only comparison.
func (m *Manager) comparisonSet(ctx context.Context, category string) []producer.ExistingTake {
	var existing []producer.ExistingTake

	if m.store != nil {
		recent, err := m.store.RecentTakes(ctx, category, recentComparisonLimit)
		if err != nil {
			slog.Warn("[ReservePool] Failed to fetch recent takes for comparison",
				slog.String("category", category),
				slog.String("error", err.Error()))
		} else {
			existing = producer.FromTakes(recent)
		}
	}

	m.mu.Lock()
	for _, entry := range m.pools[category] {
		existing = append(existing, producer.ExistingTake{
			Text:      entry.Take.Text,
			Category:  entry.Category,
			Embedding: entry.Take.Embedding,
		})
	}
	m.mu.Unlock()

	return existing
}
