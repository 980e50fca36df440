package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spacesedan/hottakes/config"
	"github.com/spacesedan/hottakes/internal/clients"
	"github.com/spacesedan/hottakes/internal/clients/kafka_client"
	"github.com/spacesedan/hottakes/internal/logging"
	"github.com/spacesedan/hottakes/internal/models"
	"github.com/spacesedan/hottakes/internal/producer"
	"github.com/spacesedan/hottakes/internal/publish"
	"github.com/spacesedan/hottakes/internal/reserve"
	"github.com/spacesedan/hottakes/internal/store"
	"github.com/spacesedan/hottakes/internal/uniqueness"
	"github.com/spacesedan/hottakes/internal/utils"
)

const (
	supplyInterval  = time.Minute
	publishBatchMin = 5
)

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)
	logging.InitLogger()

	cfg := config.Default()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.NewDynamoDBClient(ctx)
	if err != nil {
		slog.Error("[Supplier] Failed to initialize content store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	contentStore := store.New(db, cfg.TakesTable, cfg.VotesTable)

	var cache *clients.ValkeyClient
	if os.Getenv("VALKEY_INIT_ADDRESS") != "" {
		cache, err = clients.NewValkeyClient()
		if err != nil {
			slog.Warn("[Supplier] Valkey unavailable, running without embedding cache",
				slog.String("error", err.Error()))
		} else {
			defer cache.Close()
		}
	}

	var events *kafka_client.Producer
	if os.Getenv("KAFKA_BROKER") != "" {
		kafkaCfg := kafka_client.GetKafkaConfig()
		for attempt := 0; attempt < 3; attempt++ {
			events, err = kafka_client.NewProducer(kafkaCfg)
			if err == nil {
				break
			}
			slog.Warn("Kafka init failed, retrying...", slog.String("error", err.Error()))
			time.Sleep(5 * time.Second)
		}
		defer events.Close()
	}

	generator, embedder := buildProviders(cfg)

	var embedCache uniqueness.EmbeddingCache
	if cache != nil {
		embedCache = cache
	}
	filter := uniqueness.NewFilter(cfg, embedder, embedCache)

	var published producer.Fingerprints
	if cache != nil {
		published = cache
	}
	candidates := producer.New(cfg, generator, filter, nil, published)
	pools := reserve.NewManager(cfg, candidates, contentStore)

	var fingerprints publish.Fingerprinter
	if cache != nil {
		fingerprints = cache
	}
	var eventProducer publish.EventProducer
	if events != nil {
		eventProducer = events
	}
	pipeline := publish.NewPipeline(cfg, contentStore, fingerprints, eventProducer)

	slog.Info("[Supplier] Content supply daemon started",
		slog.Int("categories", len(models.Categories)),
		slog.Duration("interval", supplyInterval))

	runSupplyLoop(ctx, cfg, pools, pipeline)
	slog.Info("[Supplier] Shutting down")
}

// buildProviders picks the generation and embedding backends. OpenAI serves
// both when a key is configured; otherwise embeddings fall back to the local
// ONNX pipeline and generation stays on OpenAI's error path (degrading to
// fewer candidates rather than crashing).
func buildProviders(cfg *config.Config) (producer.Generator, uniqueness.Embedder) {
	openAI, err := clients.NewOpenAIClient(os.Getenv("OPENAI_API_KEY"), cfg.OpenAIModel, cfg.EmbeddingModel, cfg.EmbeddingDim)
	if err == nil {
		return openAI, openAI
	}
	slog.Warn("[Supplier] OpenAI unavailable", slog.String("error", err.Error()))

	local, lerr := clients.NewLocalEmbedder(cfg.LocalEmbedModel)
	if lerr != nil {
		slog.Error("[Supplier] No embedding provider available",
			slog.String("error", lerr.Error()))
		return &unavailableGenerator{}, nil
	}
	// The local model's vector size differs from the configured OpenAI
	// dimension; zero disables the dimension check on cached vectors.
	cfg.EmbeddingDim = 0
	return &unavailableGenerator{}, local
}

type unavailableGenerator struct{}

func (*unavailableGenerator) Generate(ctx context.Context, req models.GenerationRequest) (string, error) {
	return "", clients.ErrEmptyCompletion
}

func runSupplyLoop(ctx context.Context, cfg *config.Config, pools *reserve.Manager, pipeline *publish.Pipeline) {
	pending := utils.NewBatchBuffer[models.ReserveEntry]()
	ticker := time.NewTicker(supplyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushPending(context.WithoutCancel(ctx), pending, pipeline)
			return
		case <-ticker.C:
			// Top up the emptiest categories first.
			counts := make(map[string]int, len(models.Categories))
			for _, category := range models.Categories {
				counts[category] = -pools.PoolSize(category)
			}
			for _, category := range reserve.TopCategories(counts, len(counts)) {
				if pools.PoolSize(category) < cfg.MinThreshold {
					pools.MaybeReplenish(ctx, category)
				}
			}

			// Drain surpluses into the publish buffer.
			for _, category := range models.Categories {
				if pools.PoolSize(category) <= cfg.MinThreshold {
					continue
				}
				for _, entry := range pools.GetReserve(ctx, category, pools.PoolSize(category)-cfg.MinThreshold) {
					pending.Add(entry)
				}
			}

			if pending.Size() >= publishBatchMin {
				flushPending(ctx, pending, pipeline)
			}
		}
	}
}

func flushPending(ctx context.Context, pending *utils.BatchBuffer[models.ReserveEntry], pipeline *publish.Pipeline) {
	pending.LogBatchProcessing("publish")
	batch := pending.GetAndClear()
	if len(batch) == 0 {
		return
	}

	result, err := pipeline.Publish(ctx, batch)
	if err != nil {
		slog.Error("[Supplier] Publish batch failed entirely",
			slog.String("error", err.Error()))
		return
	}
	slog.Info("[Supplier] Publish batch complete",
		slog.Int("published", len(result.Published)),
		slog.Int("failed", result.Failed))
}
