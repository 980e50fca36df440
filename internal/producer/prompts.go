package producer

import (
	"math/rand"
	"sync"
)

// PromptVariant is one entry in the weighted prompt table. Weights are
// relative; the default table gives 45% generic, 45% focused and 10%
// high-intensity prompts.
type PromptVariant struct {
	Name   string
	Weight int
	System string
}

type PromptTable struct {
	variants []PromptVariant
	total    int

	// rand.Rand is not safe for concurrent use, and one table is shared by
	// every category's replenishment goroutine.
	mu  sync.Mutex
	rng *rand.Rand
}

func NewPromptTable(rng *rand.Rand, variants ...PromptVariant) *PromptTable {
	if len(variants) == 0 {
		variants = defaultVariants
	}
	total := 0
	for _, v := range variants {
		total += v.Weight
	}
	return &PromptTable{variants: variants, total: total, rng: rng}
}

// Pick draws a variant according to the weight distribution. Safe for
// concurrent use.
func (t *PromptTable) Pick() PromptVariant {
	t.mu.Lock()
	roll := t.rng.Intn(t.total)
	t.mu.Unlock()
	for _, v := range t.variants {
		if roll < v.Weight {
			return v
		}
		roll -= v.Weight
	}
	return t.variants[len(t.variants)-1]
}

var defaultVariants = []PromptVariant{
	{
		Name:   "generic",
		Weight: 45,
		System: `You write short, punchy opinions ("takes") for a swipe-voting app.
Write exactly one take on the requested topic.
Rules:
- One or two sentences, under 280 characters.
- State the opinion directly. No preamble, no hedging, no quotes around it.
- Make it something people will genuinely disagree about.
Respond with the take text only.`,
	},
	{
		Name:   "focused",
		Weight: 45,
		System: `You write short, punchy opinions ("takes") for a swipe-voting app.
Write exactly one take on a narrow, specific aspect of the requested topic —
a particular habit, product, rule, or situation, not the topic in general.
Rules:
- One or two sentences, under 280 characters.
- Concrete and specific beats broad and vague.
- No preamble, no hedging, no quotes around it.
Respond with the take text only.`,
	},
	{
		Name:   "intense",
		Weight: 10,
		System: `You write short, punchy opinions ("takes") for a swipe-voting app.
Write exactly one deliberately spicy, contrarian take on the requested topic —
the kind of confident claim that splits a room.
Rules:
- One or two sentences, under 280 characters.
- Bold and absolute, but never hateful or about real private individuals.
- No preamble, no hedging, no quotes around it.
Respond with the take text only.`,
	},
}
