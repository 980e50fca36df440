package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/hottakes/config"
	"github.com/spacesedan/hottakes/internal/models"
)

// pagedSource serves scripted pages and records how many fetches happened.
type pagedSource struct {
	pages   [][]models.Take
	fetches int
}

func (s *pagedSource) QueryApproved(ctx context.Context, category string, exclude map[string]struct{}, limit int, cursor string) ([]models.Take, string, bool, error) {
	if s.fetches >= len(s.pages) {
		s.fetches++
		return nil, "", false, nil
	}
	page := s.pages[s.fetches]
	s.fetches++
	more := s.fetches < len(s.pages)
	return page, "", more, nil
}

type staticVotes struct {
	ids []string
}

func (v *staticVotes) VotedTakeIDs(ctx context.Context, userID string) ([]string, error) {
	return v.ids, nil
}

func take(id, category string) models.Take {
	return models.Take{ID: id, Category: category, Status: models.StatusApproved}
}

func TestComposeInitial_ExcludesVotedIDs(t *testing.T) {
	source := &pagedSource{pages: [][]models.Take{{
		take("t1", "food"), take("t2", "food"), take("t3", "food"), take("t4", "food"),
	}}}
	votes := &staticVotes{ids: []string{"t1", "t2"}}
	c := NewComposer(config.Default(), source, votes, "user-1")

	queue, err := c.ComposeInitial(context.Background(), "food", 10)
	require.NoError(t, err)

	require.Len(t, queue, 2)
	assert.Equal(t, "t3", queue[0].ID)
	assert.Equal(t, "t4", queue[1].ID)
}

func TestComposeMore_NoIntraFeedDuplicates(t *testing.T) {
	source := &pagedSource{pages: [][]models.Take{
		{take("t1", "food"), take("t2", "food")},
		// Upstream re-serves t2; the second defense must drop it.
		{take("t2", "food"), take("t3", "food")},
	}}
	c := NewComposer(config.Default(), source, &staticVotes{}, "user-1")

	_, err := c.ComposeInitial(context.Background(), "food", 2)
	require.NoError(t, err)

	added, err := c.ComposeMore(context.Background(), 2)
	require.NoError(t, err)

	require.Len(t, added, 1)
	assert.Equal(t, "t3", added[0].ID)

	ids := map[string]bool{}
	for _, item := range c.Queue() {
		assert.False(t, ids[item.ID], "duplicate %s in feed", item.ID)
		ids[item.ID] = true
	}
}

func TestFetchFiltered_AllFilteredPageTriggersExtraFetch(t *testing.T) {
	source := &pagedSource{pages: [][]models.Take{
		// First page entirely voted away, second page has fresh content.
		{take("v1", "food"), take("v2", "food")},
		{take("t1", "food")},
	}}
	votes := &staticVotes{ids: []string{"v1", "v2"}}
	c := NewComposer(config.Default(), source, votes, "user-1")

	queue, err := c.ComposeInitial(context.Background(), "food", 1)
	require.NoError(t, err)

	require.Len(t, queue, 1)
	assert.Equal(t, "t1", queue[0].ID)
	assert.GreaterOrEqual(t, source.fetches, 2, "a fully filtered page must not end the fetch")
}

func TestComposeInitial_EmptyAfterRetriesExhaustsFeed(t *testing.T) {
	source := &pagedSource{pages: [][]models.Take{
		{take("v1", "food")},
		{take("v2", "food")},
		{take("v3", "food")},
	}}
	votes := &staticVotes{ids: []string{"v1", "v2", "v3"}}
	c := NewComposer(config.Default(), source, votes, "user-1")

	queue, err := c.ComposeInitial(context.Background(), "food", 5)
	require.NoError(t, err)

	assert.Empty(t, queue)
	assert.False(t, c.HasMore())
}

func TestComposeInitial_AllModeAppliesVariety(t *testing.T) {
	source := &pagedSource{pages: [][]models.Take{{
		take("a", "food"), take("b", "food"), take("c", "food"),
		take("d", "tech"), take("e", "sports"), take("f", "tech"),
	}}}
	c := NewComposer(config.Default(), source, &staticVotes{}, "user-1")

	queue, err := c.ComposeInitial(context.Background(), models.CategoryAll, 6)
	require.NoError(t, err)

	require.Len(t, queue, 6)
	assert.LessOrEqual(t, maxRun(queue), maxConsecutiveSameCategory)
}

func TestComposeMore_FreezesDisplayedPrefix(t *testing.T) {
	source := &pagedSource{pages: [][]models.Take{
		{take("a", "food"), take("b", "tech"), take("c", "sports")},
		{take("d", "sports"), take("e", "food"), take("f", "tech")},
	}}
	c := NewComposer(config.Default(), source, &staticVotes{}, "user-1")

	initial, err := c.ComposeInitial(context.Background(), models.CategoryAll, 3)
	require.NoError(t, err)

	_, err = c.ComposeMore(context.Background(), 3)
	require.NoError(t, err)

	queue := c.Queue()
	for i, item := range initial {
		assert.Equal(t, item.ID, queue[i].ID, "displayed prefix was reordered")
	}
}

func TestPrepend_DeduplicatesAndUnvotes(t *testing.T) {
	source := &pagedSource{pages: [][]models.Take{{take("t1", "food"), take("t2", "food")}}}
	c := NewComposer(config.Default(), source, &staticVotes{}, "user-1")

	_, err := c.ComposeInitial(context.Background(), "food", 2)
	require.NoError(t, err)

	c.MarkVoted("t2")
	require.True(t, c.IsVoted("t2"))

	c.Prepend(take("t2", "food"))

	queue := c.Queue()
	require.Len(t, queue, 2)
	assert.Equal(t, "t2", queue[0].ID)
	assert.False(t, c.IsVoted("t2"))

	// No second copy of t2 anywhere.
	count := 0
	for _, item := range queue {
		if item.ID == "t2" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRemove(t *testing.T) {
	source := &pagedSource{pages: [][]models.Take{{take("t1", "food"), take("t2", "food")}}}
	c := NewComposer(config.Default(), source, &staticVotes{}, "user-1")

	_, err := c.ComposeInitial(context.Background(), "food", 2)
	require.NoError(t, err)

	assert.True(t, c.Remove("t1"))
	assert.False(t, c.Remove("t1"))
	assert.Equal(t, 1, c.Len())
}
