package enrich

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PolloDK/FK01-Encuestas/internal/db"
	"github.com/PolloDK/FK01-Encuestas/internal/httpx"
	"github.com/PolloDK/FK01-Encuestas/internal/logger"
	"github.com/PolloDK/FK01-Encuestas/internal/telemetry"
)

// HTTPBackend talks to a self-hosted model server exposing
// POST /classify and POST /embed.
type HTTPBackend struct {
	baseURL string
	dims    int
	client  *httpx.Client
}

type HTTPBackendConfig struct {
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
	Retry      httpx.Policy
}

type textRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Label    string  `json:"label"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Positive float64 `json:"positive"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func NewHTTPBackend(cfg HTTPBackendConfig, log *logger.Logger, metrics *telemetry.Metrics) (*HTTPBackend, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("http backend: base url required")
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPBackend{
		baseURL: base,
		dims:    dims,
		client: &httpx.Client{
			HTTP:   &http.Client{Timeout: timeout},
			Policy: cfg.Retry,
			OnRetry: func(err error, wait time.Duration) {
				metrics.Retry("model_server")
				log.Warn("Model server request retrying", "wait", wait.String(), "error", err.Error())
			},
		},
	}, nil
}

func (b *HTTPBackend) Classify(ctx context.Context, text string) (db.Sentiment, error) {
	var resp classifyResponse
	if err := b.client.DoJSON(ctx, http.MethodPost, b.baseURL+"/classify", textRequest{Text: text}, &resp); err != nil {
		return db.Sentiment{}, fmt.Errorf("classify: %w", err)
	}
	return normalizeSentiment(resp.Negative, resp.Neutral, resp.Positive)
}

func (b *HTTPBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	if err := b.client.DoJSON(ctx, http.MethodPost, b.baseURL+"/embed", textRequest{Text: text}, &resp); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if err := checkDimensions(resp.Embedding, b.dims); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

func (b *HTTPBackend) Close() error {
	if t, ok := b.client.HTTP.Transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}
