package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spacesedan/hottakes/config"
	"github.com/spacesedan/hottakes/internal/models"
)

// TakeSource pages approved takes out of the content store.
type TakeSource interface {
	QueryApproved(ctx context.Context, category string, exclude map[string]struct{}, limit int, cursor string) ([]models.Take, string, bool, error)
}

// VoteSource supplies the user's previously voted take ids.
type VoteSource interface {
	VotedTakeIDs(ctx context.Context, userID string) ([]string, error)
}

// fetchRounds bounds how many store pages one compose call may pull. The
// second round covers the "got data but all filtered out" case, which must
// not be read as exhaustion.
const fetchRounds = 3

// Composer assembles one session's display queue. It is session-local state:
// one instance per user session, never shared.
type Composer struct {
	cfg    *config.Config
	source TakeSource
	votes  VoteSource
	userID string

	mu       sync.Mutex
	category string
	queue    []models.Take
	voted    map[string]struct{}
	cursor   string
	hasMore  bool
}

func NewComposer(cfg *config.Config, source TakeSource, votes VoteSource, userID string) *Composer {
	return &Composer{
		cfg:    cfg,
		source: source,
		votes:  votes,
		userID: userID,
		voted:  make(map[string]struct{}),
	}
}

// ComposeInitial resets the session for a category and builds the first
// queue. The voted-id set is fetched once here; skipped-but-unvoted items are
// deliberately not excluded and may reappear.
func (c *Composer) ComposeInitial(ctx context.Context, category string, targetCount int) ([]models.Take, error) {
	voted := make(map[string]struct{})
	if c.votes != nil {
		ids, err := c.votes.VotedTakeIDs(ctx, c.userID)
		if err != nil {
			return nil, fmt.Errorf("[FeedComposer] failed to load voted ids: %w", err)
		}
		for _, id := range ids {
			voted[id] = struct{}{}
		}
	}

	c.mu.Lock()
	c.category = category
	c.queue = nil
	c.voted = voted
	c.cursor = ""
	c.hasMore = true
	c.mu.Unlock()

	fetched, err := c.fetchFiltered(ctx, targetCount)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.category == models.CategoryAll {
		fetched = orderWithVariety(fetched, 0)
	}
	c.queue = fetched
	return c.snapshotLocked(), nil
}

// ComposeMore appends up to count more takes. Items already displayed keep
// their positions; only the appended tail is variety-reordered. Callers gate
// concurrent pagination with their own loading flag.
func (c *Composer) ComposeMore(ctx context.Context, count int) ([]models.Take, error) {
	c.mu.Lock()
	if !c.hasMore {
		c.mu.Unlock()
		return nil, nil
	}
	freeze := len(c.queue)
	c.mu.Unlock()

	fetched, err := c.fetchFiltered(ctx, count)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	combined := append(append([]models.Take{}, c.queue...), fetched...)
	if c.category == models.CategoryAll {
		combined = orderWithVariety(combined, freeze)
	}
	c.queue = combined

	added := make([]models.Take, len(c.queue)-freeze)
	copy(added, c.queue[freeze:])
	return added, nil
}

// fetchFiltered over-fetches from the store and filters client-side against
// the voted set and current queue, a second defense even when the store query
// already excluded ids. A page that comes back fully filtered triggers one
// more fetch before the feed is declared exhausted.
func (c *Composer) fetchFiltered(ctx context.Context, count int) ([]models.Take, error) {
	var collected []models.Take

	for round := 0; round < fetchRounds && len(collected) < count; round++ {
		c.mu.Lock()
		exclude := make(map[string]struct{}, len(c.voted)+len(c.queue))
		for id := range c.voted {
			exclude[id] = struct{}{}
		}
		for _, t := range c.queue {
			exclude[t.ID] = struct{}{}
		}
		for _, t := range collected {
			exclude[t.ID] = struct{}{}
		}
		category := c.category
		cursor := c.cursor
		c.mu.Unlock()

		pageSize := count * c.cfg.FeedPageScale
		takes, next, more, err := c.source.QueryApproved(ctx, category, exclude, pageSize, cursor)
		if err != nil {
			return nil, fmt.Errorf("[FeedComposer] failed to fetch takes: %w", err)
		}

		kept := 0
		for _, t := range takes {
			if _, seen := exclude[t.ID]; seen {
				continue
			}
			collected = append(collected, t)
			kept++
			if len(collected) == count {
				break
			}
		}

		c.mu.Lock()
		c.cursor = next
		c.hasMore = more
		c.mu.Unlock()

		if !more {
			break
		}
		if kept == 0 && len(takes) > 0 {
			// Filtered out, not exhausted; go around again.
			slog.Debug("[FeedComposer] Page fully filtered, fetching another",
				slog.String("category", category))
			continue
		}
		if len(collected) >= count {
			break
		}
	}

	c.mu.Lock()
	if len(collected) == 0 {
		c.hasMore = false
	}
	c.mu.Unlock()

	return collected, nil
}

// Prepend reinserts a take at the front of the queue, removing it from the
// voted set and deduplicating any existing occurrence. Used when a vote is
// revoked and the card must be offered again.
func (c *Composer) Prepend(take models.Take) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.voted, take.ID)

	queue := make([]models.Take, 0, len(c.queue)+1)
	queue = append(queue, take)
	for _, t := range c.queue {
		if t.ID != take.ID {
			queue = append(queue, t)
		}
	}
	c.queue = queue
}

// Remove drops a take from the queue, reporting whether it was present.
func (c *Composer) Remove(takeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, t := range c.queue {
		if t.ID == takeID {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return true
		}
	}
	return false
}

// MarkVoted records a take id in the session's interacted set.
func (c *Composer) MarkVoted(takeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voted[takeID] = struct{}{}
}

// UnmarkVoted rolls a take id back out of the interacted set.
func (c *Composer) UnmarkVoted(takeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.voted, takeID)
}

// IsVoted reports whether the session has a recorded vote for the take.
func (c *Composer) IsVoted(takeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.voted[takeID]
	return ok
}

// Len is the current queue length.
func (c *Composer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// HasMore reports whether another page may exist upstream.
func (c *Composer) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// Queue returns a copy of the current display queue.
func (c *Composer) Queue() []models.Take {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Composer) snapshotLocked() []models.Take {
	out := make([]models.Take, len(c.queue))
	copy(out, c.queue)
	return out
}
