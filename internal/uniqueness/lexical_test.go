package uniqueness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spacesedan/hottakes/config"
)

func newTestFilter() *Filter {
	return NewFilter(config.Default(), nil, nil)
}

func TestIsUnique_RejectsHighOverlap(t *testing.T) {
	f := newTestFilter()

	existing := []Existing{
		{Text: "Pineapple absolutely belongs on every single pizza ever made", Category: "food"},
	}

	// Shares nearly every significant token with the existing take.
	assert.False(t, f.IsUnique("Pineapple absolutely belongs on every single pizza", "food", existing))
}

func TestIsUnique_AcceptsDisjointText(t *testing.T) {
	f := newTestFilter()

	existing := []Existing{
		{Text: "Pineapple absolutely belongs on every single pizza ever made", Category: "food"},
	}

	assert.True(t, f.IsUnique("Cereal tastes better when eaten completely dry", "food", existing))
}

func TestIsUnique_IgnoresOtherCategories(t *testing.T) {
	f := newTestFilter()

	existing := []Existing{
		{Text: "Pineapple absolutely belongs on every single pizza ever made", Category: "tech"},
	}

	// Identical text, but the existing take lives in a different category.
	assert.True(t, f.IsUnique("Pineapple absolutely belongs on every single pizza ever made", "food", existing))
}

func TestIsUnique_EmptyCandidate(t *testing.T) {
	f := newTestFilter()

	existing := []Existing{{Text: "anything at all goes here", Category: "food"}}
	assert.True(t, f.IsUnique("a an it", "food", existing))
}

func TestSignificantTokens(t *testing.T) {
	tokens := significantTokens("The CATS and dogs, obviously dogs!")

	assert.Contains(t, tokens, "cats")
	assert.Contains(t, tokens, "dogs")
	assert.Contains(t, tokens, "obviously")
	// Three characters or fewer carry no signal.
	assert.NotContains(t, tokens, "the")
	assert.NotContains(t, tokens, "and")
}
