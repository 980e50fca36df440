package models

import "time"

type VoteChoice string

const (
	VoteHot VoteChoice = "hot"
	VoteNot VoteChoice = "not"
)

// Vote records a single user's verdict on a take. At most one vote may exist
// per (take, user) pair; the store enforces this with a conditional write on
// the composite key.
type Vote struct {
	TakeID  string     `json:"take_id" dynamodbav:"take_id"`
	UserID  string     `json:"user_id" dynamodbav:"user_id"`
	Choice  VoteChoice `json:"choice" dynamodbav:"choice"`
	VotedAt time.Time  `json:"voted_at" dynamodbav:"voted_at,unixtime"`
}

// VoteKey is the composite partition key for the votes table.
func VoteKey(takeID, userID string) string {
	return takeID + "#" + userID
}
