package models

import "time"

// ReserveEntry is a generated, not-yet-published take held in a reserve pool.
// Entries are owned exclusively by the pool until the publish pipeline splices
// them out; they are moved, never copied.
type ReserveEntry struct {
	Take        Take
	Category    string
	GeneratedAt time.Time
}

// CategoryReplenishState tracks the replenishment guards for one category.
// Created lazily on first access; AttemptCount decays over time and resets
// when a run restores the pool above its minimum threshold.
type CategoryReplenishState struct {
	LastReplenishedAt time.Time
	AttemptCount      int
	IsReplenishing    bool
}
