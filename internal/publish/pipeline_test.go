package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/hottakes/config"
	"github.com/spacesedan/hottakes/internal/models"
)

type fakeTakeStore struct {
	inserted []models.Take
	failOn   map[string]bool
	nextID   int
}

func (s *fakeTakeStore) Insert(ctx context.Context, take models.Take) (string, error) {
	if s.failOn[take.Text] {
		return "", errors.New("store unavailable")
	}
	s.nextID++
	take.ID = string(rune('a' + s.nextID - 1))
	s.inserted = append(s.inserted, take)
	return take.ID, nil
}

type recordingEvents struct {
	published []string
	fail      bool
}

func (r *recordingEvents) Publish(ctx context.Context, topic, key string, payload any) error {
	if r.fail {
		return errors.New("broker down")
	}
	r.published = append(r.published, key)
	return nil
}

type recordingFingerprints struct {
	marked []string
	fail   bool
}

func (r *recordingFingerprints) MarkPublished(ctx context.Context, text string) error {
	if r.fail {
		return errors.New("cache down")
	}
	r.marked = append(r.marked, text)
	return nil
}

func entriesOf(texts ...string) []models.ReserveEntry {
	var entries []models.ReserveEntry
	for _, text := range texts {
		entries = append(entries, models.ReserveEntry{
			Take:     models.Take{Text: text, Category: "food", Status: models.StatusPending},
			Category: "food",
		})
	}
	return entries
}

func TestPublish_AllSucceed(t *testing.T) {
	store := &fakeTakeStore{}
	events := &recordingEvents{}
	prints := &recordingFingerprints{}
	p := NewPipeline(config.Default(), store, prints, events)

	result, err := p.Publish(context.Background(), entriesOf("one take", "two take"))
	require.NoError(t, err)

	require.Len(t, result.Published, 2)
	assert.Zero(t, result.Failed)
	for _, take := range result.Published {
		assert.NotEmpty(t, take.ID)
		assert.Equal(t, models.StatusApproved, take.Status)
		assert.False(t, take.SubmittedAt.IsZero())
	}
	assert.Len(t, events.published, 2)
	assert.Len(t, prints.marked, 2)
}

func TestPublish_PartialFailureTolerated(t *testing.T) {
	store := &fakeTakeStore{failOn: map[string]bool{"bad take": true}}
	p := NewPipeline(config.Default(), store, nil, nil)

	result, err := p.Publish(context.Background(), entriesOf("good take", "bad take", "another take"))
	require.NoError(t, err)

	assert.Len(t, result.Published, 2)
	assert.Equal(t, 1, result.Failed)
}

func TestPublish_ZeroSuccessIsHardFailure(t *testing.T) {
	store := &fakeTakeStore{failOn: map[string]bool{"bad one": true, "bad two": true}}
	p := NewPipeline(config.Default(), store, nil, nil)

	_, err := p.Publish(context.Background(), entriesOf("bad one", "bad two"))

	var npe *NothingPublishedError
	require.ErrorAs(t, err, &npe)
	assert.Equal(t, 2, npe.Failed)
}

func TestPublish_EmptyBatchIsNoop(t *testing.T) {
	p := NewPipeline(config.Default(), &fakeTakeStore{}, nil, nil)

	result, err := p.Publish(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Published)
}

func TestPublish_SideChannelFailuresDoNotFailBatch(t *testing.T) {
	store := &fakeTakeStore{}
	p := NewPipeline(config.Default(), store, &recordingFingerprints{fail: true}, &recordingEvents{fail: true})

	result, err := p.Publish(context.Background(), entriesOf("resilient take"))
	require.NoError(t, err)
	assert.Len(t, result.Published, 1)
}
