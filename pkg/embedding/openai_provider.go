package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kadirpekel/ragforge"
)

// OpenAIProvider implements Provider against an OpenAI-compatible
// embeddings endpoint (OpenAI itself, or any server speaking the same
// request/response shape).
//
// Grounded on pkg/embedders/openai.go's OpenAIEmbedder: same request/
// response structs and batch-call shape, narrowed to the single
// EmbedBatch entry point this pipeline needs and reclassified onto the
// §4.4 TransientProviderError/FatalProviderError taxonomy instead of
// bare fmt.Errorf.
type OpenAIProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	dim     int
}

// OpenAIProviderConfig configures NewOpenAIProvider.
type OpenAIProviderConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

var openAIModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// NewOpenAIProvider constructs an OpenAIProvider, defaulting BaseURL,
// Model and Dimension the way NewOpenAIEmbedderFromConfig does.
func NewOpenAIProvider(cfg OpenAIProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding: openai provider requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = openAIModelDimensions[cfg.Model]
		if cfg.Dimension == 0 {
			cfg.Dimension = 1536
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIProvider{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		dim:     cfg.Dimension,
	}, nil
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// EmbedBatch implements Provider.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody, err := json.Marshal(openAIEmbedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, ragforge.NewFatalProviderError("", "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, ragforge.NewFatalProviderError("", "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ragforge.NewTransientProviderError(ragforge.ProviderTransient, 1, "request cancelled", ctx.Err())
		}
		return nil, ragforge.NewTransientProviderError(ragforge.ProviderTransient, 1, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ragforge.NewTransientProviderError(ragforge.ProviderTransient, 1, "failed to read response body", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ragforge.NewTransientProviderError(ragforge.ProviderRateLimited, 1, "rate limited", decodeOpenAIError(body))
	}
	if resp.StatusCode >= 500 {
		return nil, ragforge.NewTransientProviderError(ragforge.ProviderTransient, 1, "server error", decodeOpenAIError(body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ragforge.NewFatalProviderError("", fmt.Sprintf("status %d", resp.StatusCode), decodeOpenAIError(body))
	}

	var parsed openAIEmbedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, ragforge.NewFatalProviderError("", "failed to decode response", err)
	}

	out := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index >= 0 && item.Index < len(out) {
			out[item.Index] = item.Embedding
		}
	}
	return out, nil
}

func decodeOpenAIError(body []byte) error {
	var parsed openAIErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return fmt.Errorf("%s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	return fmt.Errorf("%s", string(body))
}

// Dimension implements Provider.
func (p *OpenAIProvider) Dimension() int { return p.dim }

// Model implements Provider.
func (p *OpenAIProvider) Model() string { return p.model }
