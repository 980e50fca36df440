package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spacesedan/hottakes/internal/models"
)

// Config carries every pipeline tunable. It is built once in main and passed
// to each component constructor so tests can run independent instances with
// their own knobs.
type Config struct {
	// Reserve pool
	MinThreshold       int
	TargetPoolSize     int
	ReplenishBatchSize int
	OnDemandLimit      int

	// Replenishment guards
	CooldownBase         time.Duration
	MaxReplenishAttempts int
	AttemptDecayAfter    time.Duration

	// Candidate generation
	MaxGenerationRetries int
	BaseTemperature      float64
	TemperatureStep      float64
	MaxTemperature       float64
	MinTextLen           int
	MaxTextLen           int

	// Uniqueness thresholds
	LexicalOverlapMax float64
	SimilarityHigh    float64
	SimilarityMedium  float64
	SimilarityLow     float64

	// Feed
	FeedLowWater  int
	FeedPageScale int

	// Store
	TakesTable string
	VotesTable string

	// Kafka topics
	TopicTakePublished string
	TopicVoteCommitted string

	// Providers
	OpenAIModel     string
	EmbeddingModel  string
	EmbeddingDim    int
	EmbedCacheTTL   time.Duration
	LocalEmbedModel string
}

func Default() *Config {
	return &Config{
		MinThreshold:       5,
		TargetPoolSize:     15,
		ReplenishBatchSize: 5,
		OnDemandLimit:      5,

		CooldownBase:         30 * time.Second,
		MaxReplenishAttempts: 3,
		AttemptDecayAfter:    time.Hour,

		MaxGenerationRetries: 3,
		BaseTemperature:      0.9,
		TemperatureStep:      0.15,
		MaxTemperature:       1.3,
		MinTextLen:           models.MinTakeLength,
		MaxTextLen:           models.MaxTakeLength,

		LexicalOverlapMax: 0.6,
		SimilarityHigh:    0.90,
		SimilarityMedium:  0.85,
		SimilarityLow:     0.75,

		FeedLowWater:  10,
		FeedPageScale: 2,

		TakesTable: getEnv("TAKES_TABLE", "Takes"),
		VotesTable: getEnv("VOTES_TABLE", "Votes"),

		TopicTakePublished: "take-published",
		TopicVoteCommitted: "vote-committed",

		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:    getEnvInt("EMBEDDING_DIM", 1536),
		EmbedCacheTTL:   24 * time.Hour,
		LocalEmbedModel: getEnv("LOCAL_EMBED_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
	}
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
