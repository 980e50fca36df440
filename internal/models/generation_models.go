package models

// GenerationRequest describes one generation attempt against the text
// provider.
type GenerationRequest struct {
	Category    string
	Prompt      string
	Temperature float64
}

// PublishedEvent is the JSON payload emitted on the take-published topic.
type PublishedEvent struct {
	TakeID   string `json:"take_id"`
	Category string `json:"category"`
	Text     string `json:"text"`
}

// VoteEvent is the JSON payload emitted on the vote-committed topic.
type VoteEvent struct {
	TakeID string `json:"take_id"`
	UserID string `json:"user_id"`
	Choice string `json:"choice"`
}
