package clients

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

const embedModelDir = "./internal/transformers/models"

// LocalEmbedder runs a feature-extraction model through an ONNX runtime
// session, for deployments without an OpenAI key. It satisfies the same
// Embedder contract as OpenAIClient.
type LocalEmbedder struct {
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
}

func NewLocalEmbedder(modelName string) (*LocalEmbedder, error) {
	if err := os.MkdirAll(embedModelDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("[LocalEmbedder] failed to create model directory: %w", err)
	}

	slog.Info("[LocalEmbedder] Ensuring embedding model is available", slog.String("model", modelName))
	modelPath, err := hugot.DownloadModel(modelName, embedModelDir, hugot.NewDownloadOptions())
	if err != nil {
		return nil, fmt.Errorf("[LocalEmbedder] failed to download embedding model: %w", err)
	}

	session, err := hugot.NewORTSession()
	if err != nil {
		return nil, fmt.Errorf("[LocalEmbedder] failed to initialize ONNX session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "takeEmbeddingPipeline",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("[LocalEmbedder] failed to initialize embedding pipeline: %w", err)
	}

	slog.Info("[LocalEmbedder] Embedding pipeline ready", slog.String("path", modelPath))
	return &LocalEmbedder{session: session, pipeline: pipeline}, nil
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	output, err := e.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("[LocalEmbedder] pipeline run: %w", err)
	}
	if len(output.Embeddings) == 0 {
		return nil, fmt.Errorf("[LocalEmbedder] pipeline returned no embeddings")
	}

	raw := output.Embeddings[0]
	vector := make([]float64, len(raw))
	for i, v := range raw {
		vector[i] = float64(v)
	}
	return vector, nil
}

func (e *LocalEmbedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
}
