package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/spacesedan/hottakes/internal/models"
)

const openAIRequestTimeout = 60 * time.Second

var ErrEmptyCompletion = errors.New("[OpenAIClient] completion returned no content")

// OpenAIClient serves both collaborator roles backed by the OpenAI API: text
// generation for the candidate producer and embeddings for the uniqueness
// filter. Construct one per process and inject it; there is no package-level
// instance.
type OpenAIClient struct {
	client         *openai.Client
	model          string
	embeddingModel string
	embeddingDim   int
}

func NewOpenAIClient(apiKey, model, embeddingModel string, embeddingDim int) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("[OpenAIClient] missing OPENAI_API_KEY")
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: openAIRequestTimeout}),
	)

	slog.Info("[OpenAIClient] OpenAI client initialized",
		slog.String("model", model),
		slog.String("embedding_model", embeddingModel),
		slog.Int("embedding_dim", embeddingDim),
		slog.Duration("timeout", openAIRequestTimeout))

	return &OpenAIClient{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		embeddingDim:   embeddingDim,
	}, nil
}

// Generate runs a single chat completion. Retrying is the caller's concern;
// one call maps to one attempt.
func (c *OpenAIClient) Generate(ctx context.Context, req models.GenerationRequest) (string, error) {
	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.Prompt),
			openai.UserMessage(fmt.Sprintf("Write one take about %s.", req.Category)),
		}),
		Model:       openai.F(openai.ChatModel(c.model)),
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		slog.Warn("[OpenAIClient] Chat completion failed",
			slog.String("category", req.Category),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("[OpenAIClient] chat completion: %w", err)
	}

	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}

	return completion.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for text, requested at the configured
// dimensionality so vectors stay comparable with cached ones.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float64, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.F[openai.EmbeddingNewParamsInputUnion](
			openai.EmbeddingNewParamsInputArrayOfStrings([]string{text}),
		),
		Model: openai.F(openai.EmbeddingModel(c.embeddingModel)),
	}
	if c.embeddingDim > 0 {
		params.Dimensions = openai.F(int64(c.embeddingDim))
	}

	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("[OpenAIClient] embedding request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("[OpenAIClient] embedding response contained no data")
	}

	return resp.Data[0].Embedding, nil
}
