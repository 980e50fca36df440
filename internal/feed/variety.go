package feed

import (
	"log/slog"

	"github.com/spacesedan/hottakes/internal/models"
)

// maxConsecutiveSameCategory caps category runs in a mixed feed.
const maxConsecutiveSameCategory = 2

// orderWithVariety greedily reorders takes so that no more than two
// consecutive items share a category. The first freezePrefix items are
// already on screen and are never moved; only the tail participates. When no
// different-category item remains the run is allowed to continue.
func orderWithVariety(takes []models.Take, freezePrefix int) []models.Take {
	if freezePrefix < 0 {
		freezePrefix = 0
	}
	if freezePrefix >= len(takes) {
		return takes
	}

	result := make([]models.Take, 0, len(takes))
	result = append(result, takes[:freezePrefix]...)

	remaining := make([]models.Take, len(takes)-freezePrefix)
	copy(remaining, takes[freezePrefix:])

	for len(remaining) > 0 {
		pick := 0
		if runs := trailingRun(result); runs.length >= maxConsecutiveSameCategory {
			pick = -1
			for i, t := range remaining {
				if t.Category != runs.category {
					pick = i
					break
				}
			}
			if pick == -1 {
				slog.Debug("[FeedComposer] Only one category left, allowing longer run",
					slog.String("category", runs.category))
				pick = 0
			}
		}

		result = append(result, remaining[pick])
		remaining = append(remaining[:pick], remaining[pick+1:]...)
	}

	return result
}

type categoryRun struct {
	category string
	length   int
}

func trailingRun(takes []models.Take) categoryRun {
	if len(takes) == 0 {
		return categoryRun{}
	}

	last := takes[len(takes)-1].Category
	length := 0
	for i := len(takes) - 1; i >= 0 && takes[i].Category == last; i-- {
		length++
	}
	return categoryRun{category: last, length: length}
}
