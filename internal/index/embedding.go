/**
 * Embedding Client
 *
 * Generates VoyageAI embeddings for recognized page text so converted
 * scans become searchable. Requests are throttled with a token bucket.
 */

package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"golang.org/x/time/rate"
)

const (
	defaultEmbeddingURL   = "https://api.voyageai.com/v1/embeddings"
	defaultEmbeddingModel = "voyage-3"

	// Dimensions of voyage-3 vectors
	Dimensions = 1024

	maxEmbeddingChars = 16000
	maxBatchSize      = 100
)

// Embedder turns texts into vectors, one per input, in input order
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingConfig configures the VoyageAI client
type EmbeddingConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	RatePerSecond float64
	Dimensions    int
}

// EmbeddingClient handles VoyageAI embedding generation
type EmbeddingClient struct {
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *logging.Logger
}

type voyageRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// NewEmbeddingClient creates a new embedding client. A RatePerSecond of 0
// leaves requests unthrottled.
func NewEmbeddingClient(cfg EmbeddingConfig, logger *logging.Logger) (*EmbeddingClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("VoyageAI API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEmbeddingURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultEmbeddingModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = Dimensions
	}
	if logger == nil {
		logger = logging.Nop()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	return &EmbeddingClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		limiter:    limiter,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

// Embed generates one embedding
func (e *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	vectors, err := e.call(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings in chunks of 100 texts. A failing chunk
// falls back to one request per text.
func (e *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		vectors, err := e.call(ctx, batch)
		if err == nil {
			all = append(all, vectors...)
			continue
		}
		if ctx.Err() != nil {
			return nil, err
		}

		e.logger.Warn("Batch embedding failed, falling back to single requests",
			"from", i, "to", end-1, "error", err)
		for j, text := range batch {
			vector, err := e.Embed(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("failed to embed text %d: %w", i+j, err)
			}
			all = append(all, vector)
		}
	}
	return all, nil
}

func (e *EmbeddingClient) call(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	input := make([]string, len(texts))
	for i, text := range texts {
		if len(text) > maxEmbeddingChars {
			text = truncateRunes(text, maxEmbeddingChars)
		}
		input[i] = text
	}

	body, err := json.Marshal(voyageRequest{Input: input, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("VoyageAI API returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed voyageResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(parsed.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("invalid embedding index: %d", d.Index)
		}
		if len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("unexpected embedding dimensions for text %d: got %d, expected %d", d.Index, len(d.Embedding), e.dimensions)
		}
		vectors[d.Index] = d.Embedding
	}

	e.logger.Debug("Embeddings generated",
		"texts", len(texts),
		"tokens", parsed.Usage.TotalTokens,
		"duration", time.Since(start).String())
	return vectors, nil
}

// truncateRunes cuts s to at most n bytes without splitting a character
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
