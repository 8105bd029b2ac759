package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
)

const classifyPrompt = `Eres un clasificador de sentimiento para publicaciones en español sobre política chilena.
Responde solo con JSON: {"negative": p, "neutral": p, "positive": p}
donde cada p está entre 0 y 1 y las tres suman 1.`

// OpenAIBackend classifies with a chat model and embeds with the embeddings
// endpoint, truncated to the configured dimension count.
type OpenAIBackend struct {
	client         openai.Client
	chatModel      string
	embeddingModel string
	dims           int
}

type OpenAIBackendConfig struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Dimensions     int
	MaxRetries     int
}

func NewOpenAIBackend(cfg OpenAIBackendConfig) (*OpenAIBackend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai backend: OPENAI_API_KEY is not set")
	}
	b := &OpenAIBackend{
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		dims:           cfg.Dimensions,
	}
	if b.chatModel == "" {
		b.chatModel = string(openai.ChatModelGPT4oMini)
	}
	if b.embeddingModel == "" {
		b.embeddingModel = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	if b.dims <= 0 {
		b.dims = DefaultDimensions
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	b.client = openai.NewClient(opts...)
	return b, nil
}

func (b *OpenAIBackend) Classify(ctx context.Context, text string) (db.Sentiment, error) {
	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(b.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifyPrompt),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(60),
	})
	if err != nil {
		return db.Sentiment{}, fmt.Errorf("openai classify: %w", err)
	}
	if len(resp.Choices) == 0 {
		return db.Sentiment{}, fmt.Errorf("openai classify: no choices returned")
	}
	return parseSentimentJSON(resp.Choices[0].Message.Content)
}

// parseSentimentJSON extracts the first JSON object from a model reply.
func parseSentimentJSON(content string) (db.Sentiment, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return db.Sentiment{}, fmt.Errorf("no JSON object in model reply %q", content)
	}
	var probs struct {
		Negative float64 `json:"negative"`
		Neutral  float64 `json:"neutral"`
		Positive float64 `json:"positive"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &probs); err != nil {
		return db.Sentiment{}, fmt.Errorf("parsing model reply: %w", err)
	}
	return normalizeSentiment(probs.Negative, probs.Neutral, probs.Positive)
}

func (b *OpenAIBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := b.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:      openai.EmbeddingModel(b.embeddingModel),
		Dimensions: openai.Int(int64(b.dims)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embed: empty response")
	}
	src := resp.Data[0].Embedding
	v := make([]float32, len(src))
	for i, f := range src {
		v[i] = float32(f)
	}
	if err := checkDimensions(v, b.dims); err != nil {
		return nil, err
	}
	return v, nil
}

// Close is a no-op; the SDK client holds no resources beyond the default transport.
func (b *OpenAIBackend) Close() error { return nil }
