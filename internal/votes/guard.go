package votes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spacesedan/hottakes/config"
	"github.com/spacesedan/hottakes/internal/models"
	"github.com/spacesedan/hottakes/internal/store"
)

// VoteStore is the durable vote surface of the content store.
type VoteStore interface {
	RecordVote(ctx context.Context, vote models.Vote) error
	FindVote(ctx context.Context, takeID, userID string) (*models.Vote, error)
	DeleteVote(ctx context.Context, takeID, userID string) error
	IncrementVotes(ctx context.Context, takeID string, choice models.VoteChoice, delta int) error
}

// Feed is the slice of the session composer the guard mutates.
type Feed interface {
	Remove(takeID string) bool
	MarkVoted(takeID string)
	UnmarkVoted(takeID string)
	IsVoted(takeID string) bool
	Prepend(take models.Take)
	Len() int
	HasMore() bool
	ComposeMore(ctx context.Context, count int) ([]models.Take, error)
}

// EventProducer emits vote analytics events; nil disables emission.
type EventProducer interface {
	Publish(ctx context.Context, topic string, key string, payload any) error
}

// Guard coordinates optimistic UI state, in-flight deduplication and
// idempotent persistence of votes for one session.
type Guard struct {
	cfg    *config.Config
	store  VoteStore
	feed   Feed
	events EventProducer
	userID string

	// RestoreOnFailure reinserts the card when the durable write fails. The
	// shipped behavior leaves the card dropped; flip this if product wants
	// the card back.
	RestoreOnFailure bool

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewGuard(cfg *config.Config, voteStore VoteStore, feed Feed, events EventProducer, userID string) *Guard {
	return &Guard{
		cfg:      cfg,
		store:    voteStore,
		feed:     feed,
		events:   events,
		userID:   userID,
		inFlight: make(map[string]struct{}),
	}
}

// Commit records a vote with at-most-once semantics. Duplicate submissions —
// whether racing (in-flight) or already persisted — resolve as silent no-ops,
// never as user-facing errors.
func (g *Guard) Commit(ctx context.Context, take models.Take, choice models.VoteChoice) error {
	takeID := take.ID

	g.mu.Lock()
	if _, racing := g.inFlight[takeID]; racing {
		g.mu.Unlock()
		slog.Debug("[VoteGuard] Dropping duplicate in-flight vote",
			slog.String("take_id", takeID))
		return nil
	}
	g.inFlight[takeID] = struct{}{}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.inFlight, takeID)
		g.mu.Unlock()
	}()

	if g.feed.IsVoted(takeID) {
		// Already committed this session; just make sure the card is gone.
		g.feed.Remove(takeID)
		return nil
	}

	// Optimistic path: the card disappears and the id joins the voted set
	// before the durable write lands.
	g.feed.Remove(takeID)
	g.feed.MarkVoted(takeID)

	err := g.store.RecordVote(ctx, models.Vote{
		TakeID:  takeID,
		UserID:  g.userID,
		Choice:  choice,
		VotedAt: time.Now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrVoteExists) {
			// Persisted by an earlier session; idempotent no-op.
			return nil
		}

		g.feed.UnmarkVoted(takeID)
		if g.RestoreOnFailure {
			g.feed.Prepend(take)
		}
		return fmt.Errorf("[VoteGuard] failed to persist vote: %w", err)
	}

	if err := g.store.IncrementVotes(ctx, takeID, choice, 1); err != nil {
		slog.Error("[VoteGuard] Vote recorded but counter update failed",
			slog.String("take_id", takeID),
			slog.String("error", err.Error()))
	}

	if g.events != nil {
		event := models.VoteEvent{TakeID: takeID, UserID: g.userID, Choice: string(choice)}
		if err := g.events.Publish(ctx, g.cfg.TopicVoteCommitted, takeID, event); err != nil {
			slog.Warn("[VoteGuard] Failed to emit vote event",
				slog.String("take_id", takeID),
				slog.String("error", err.Error()))
		}
	}

	g.maybeRefill(ctx)
	return nil
}

// Revoke deletes a persisted vote, rolls the counters back and offers the
// card again at the front of the feed. Revoking an absent vote is a no-op.
func (g *Guard) Revoke(ctx context.Context, take models.Take) error {
	existing, err := g.store.FindVote(ctx, take.ID, g.userID)
	if err != nil {
		return fmt.Errorf("[VoteGuard] failed to look up vote for revoke: %w", err)
	}
	if existing == nil {
		return nil
	}

	if err := g.store.DeleteVote(ctx, take.ID, g.userID); err != nil {
		return fmt.Errorf("[VoteGuard] failed to delete vote: %w", err)
	}

	if err := g.store.IncrementVotes(ctx, take.ID, existing.Choice, -1); err != nil {
		slog.Error("[VoteGuard] Vote deleted but counter rollback failed",
			slog.String("take_id", take.ID),
			slog.String("error", err.Error()))
	}

	g.feed.Prepend(take)
	return nil
}

// maybeRefill issues a fire-and-forget pagination fetch when the queue drops
// under the low-water mark and more content exists upstream.
func (g *Guard) maybeRefill(ctx context.Context) {
	if g.feed.Len() >= g.cfg.FeedLowWater || !g.feed.HasMore() {
		return
	}

	go func() {
		refillCtx := context.WithoutCancel(ctx)
		if _, err := g.feed.ComposeMore(refillCtx, g.cfg.FeedLowWater); err != nil {
			slog.Warn("[VoteGuard] Auto-refill fetch failed",
				slog.String("error", err.Error()))
		}
	}()
}
