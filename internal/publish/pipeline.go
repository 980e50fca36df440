package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spacesedan/hottakes/config"
	"github.com/spacesedan/hottakes/internal/models"
)

// TakeStore is the durable insert surface of the content store.
type TakeStore interface {
	Insert(ctx context.Context, take models.Take) (string, error)
}

// Fingerprinter remembers published text so the uniqueness layer can cheaply
// reject exact repeats.
type Fingerprinter interface {
	MarkPublished(ctx context.Context, text string) error
}

// EventProducer emits analytics events. A nil implementation is allowed.
type EventProducer interface {
	Publish(ctx context.Context, topic string, key string, payload any) error
}

// NothingPublishedError is returned when every entry in a batch failed.
type NothingPublishedError struct {
	Failed int
}

func (e *NothingPublishedError) Error() string {
	return fmt.Sprintf("[PublishPipeline] all %d entries failed to publish", e.Failed)
}

// Result is the outcome of a publish batch. Failed > 0 with a non-empty
// Published slice is a partial success, which callers must tolerate.
type Result struct {
	Published []models.Take
	Failed    int
}

// Pipeline commits reserve entries to the content store.
type Pipeline struct {
	cfg          *config.Config
	store        TakeStore
	fingerprints Fingerprinter
	events       EventProducer
}

func NewPipeline(cfg *config.Config, store TakeStore, fingerprints Fingerprinter, events EventProducer) *Pipeline {
	return &Pipeline{cfg: cfg, store: store, fingerprints: fingerprints, events: events}
}

// Publish submits each entry independently; one failure never aborts the
// batch. Published takes gain a durable id and approved status. Zero
// successes is the only hard failure.
func (p *Pipeline) Publish(ctx context.Context, entries []models.ReserveEntry) (*Result, error) {
	result := &Result{}

	for _, entry := range entries {
		take := entry.Take
		take.Status = models.StatusApproved
		take.SubmittedAt = time.Now()

		id, err := p.store.Insert(ctx, take)
		if err != nil {
			slog.Error("[PublishPipeline] Failed to publish take",
				slog.String("category", entry.Category),
				slog.String("error", err.Error()))
			result.Failed++
			continue
		}
		take.ID = id

		p.afterPublish(ctx, take)
		result.Published = append(result.Published, take)
	}

	if len(result.Published) == 0 && len(entries) > 0 {
		return nil, &NothingPublishedError{Failed: result.Failed}
	}

	slog.Info("[PublishPipeline] Batch published",
		slog.Int("published", len(result.Published)),
		slog.Int("failed", result.Failed))
	return result, nil
}

// afterPublish runs the best-effort side channels: fingerprint marking and
// the analytics event. Neither can fail the publish.
func (p *Pipeline) afterPublish(ctx context.Context, take models.Take) {
	if p.fingerprints != nil {
		if err := p.fingerprints.MarkPublished(ctx, take.Text); err != nil {
			slog.Warn("[PublishPipeline] Failed to mark fingerprint",
				slog.String("take_id", take.ID),
				slog.String("error", err.Error()))
		}
	}

	if p.events != nil {
		event := models.PublishedEvent{
			TakeID:   take.ID,
			Category: take.Category,
			Text:     take.Text,
		}
		if err := p.events.Publish(ctx, p.cfg.TopicTakePublished, take.ID, event); err != nil {
			slog.Warn("[PublishPipeline] Failed to emit published event",
				slog.String("take_id", take.ID),
				slog.String("error", err.Error()))
		}
	}
}
