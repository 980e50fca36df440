package producer

import (
	"context"
	"fmt"
	"strings"

	"github.com/spacesedan/hottakes/internal/models"
)

// bannedPhrases are fragments of model boilerplate or refusal text that must
// never reach the pool.
var bannedPhrases = []string{
	"as an ai",
	"as a language model",
	"i cannot",
	"i can't help",
	"here's a take",
	"here is a take",
	"hot take:",
	"sure, here",
	"my opinion as",
}

// RejectionError carries a user-visible reason a submission was refused,
// distinct from internal failures.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

func (p *Producer) validateShape(text string) *RejectionError {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < p.cfg.MinTextLen {
		return &RejectionError{Reason: fmt.Sprintf("take is too short (minimum %d characters)", p.cfg.MinTextLen)}
	}
	if len(trimmed) > p.cfg.MaxTextLen {
		return &RejectionError{Reason: fmt.Sprintf("take is too long (maximum %d characters)", p.cfg.MaxTextLen)}
	}

	lowered := strings.ToLower(trimmed)
	for _, phrase := range bannedPhrases {
		if strings.Contains(lowered, phrase) {
			return &RejectionError{Reason: "take contains boilerplate or meta-commentary"}
		}
	}
	return nil
}

// ValidateSubmission runs a user-submitted take through the same shape and
// uniqueness checks as generated candidates and returns a specific, surfaced
// reason on rejection.
func (p *Producer) ValidateSubmission(ctx context.Context, text, category string, existing []ExistingTake) error {
	if !models.IsValidCategory(category) {
		return &RejectionError{Reason: fmt.Sprintf("unknown category %q", category)}
	}

	if rej := p.validateShape(text); rej != nil {
		return rej
	}

	if p.fingerprints != nil && p.fingerprints.IsPublished(ctx, text) {
		return &RejectionError{Reason: "this take has already been published"}
	}

	lexical, embeddings := splitExisting(existing)
	if !p.filter.IsUnique(text, category, lexical) {
		return &RejectionError{Reason: "a very similar take already exists"}
	}

	if res := p.filter.CheckSemantic(ctx, text, embeddings); res.Similar {
		return &RejectionError{
			Reason: fmt.Sprintf("too similar to an existing take (%.0f%% match)", res.Similarity*100),
		}
	}
	return nil
}
