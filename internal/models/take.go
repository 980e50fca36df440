package models

import "time"

type TakeStatus string

const (
	StatusPending  TakeStatus = "pending"
	StatusApproved TakeStatus = "approved"
	StatusRejected TakeStatus = "rejected"
)

// Take text length window, enforced on generated and submitted candidates.
const (
	MinTakeLength = 10
	MaxTakeLength = 280
)

// CategoryAll is the pseudo-category used by mixed feeds and mixed reserve
// draws. It is never stored on a Take.
const CategoryAll = "all"

// Categories is the fixed category set a Take may belong to.
var Categories = []string{
	"food", "tech", "politics", "sports", "art",
	"music", "movies", "relationships", "work", "random",
}

func IsValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Take is a single votable content item. ID is empty until the take is
// published to the content store.
type Take struct {
	ID          string     `json:"id" dynamodbav:"id"`
	Text        string     `json:"text" dynamodbav:"text"`
	Category    string     `json:"category" dynamodbav:"category"`
	HotVotes    int        `json:"hot_votes" dynamodbav:"hot_votes"`
	NotVotes    int        `json:"not_votes" dynamodbav:"not_votes"`
	TotalVotes  int        `json:"total_votes" dynamodbav:"total_votes"`
	CreatedAt   time.Time  `json:"created_at" dynamodbav:"created_at,unixtime"`
	SubmittedAt time.Time  `json:"submitted_at" dynamodbav:"submitted_at,unixtime"`
	Status      TakeStatus `json:"status" dynamodbav:"status"`
	IsGenerated bool       `json:"is_generated" dynamodbav:"is_generated"`
	Embedding   []float64  `json:"embedding,omitempty" dynamodbav:"embedding,omitempty"`
	// RejectionReason is a user-visible explanation set when a submission
	// fails moderation, empty otherwise.
	RejectionReason string `json:"rejection_reason,omitempty" dynamodbav:"rejection_reason,omitempty"`
	// Confidence is an informational quality estimate in [0,1] for review
	// tooling. It never gates publication.
	Confidence float64 `json:"confidence,omitempty" dynamodbav:"confidence,omitempty"`
}
