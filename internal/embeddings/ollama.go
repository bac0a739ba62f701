// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ollamaModelDims maps known local models to their output width; models
// not listed here get their dimension confirmed from the first response.
var ollamaModelDims = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
}

// OllamaEmbedder uses a local Ollama instance for embeddings.
type OllamaEmbedder struct {
	baseURL string
	model   string
	client  *http.Client

	mu  sync.Mutex
	dim int
}

// NewOllamaEmbedder creates a new Ollama embedder.
func NewOllamaEmbedder(baseURL, model string) (*OllamaEmbedder, error) {
	dim := ollamaModelDims[model]
	if dim == 0 {
		dim = 768
	}

	return &OllamaEmbedder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second}, // local inference can be slow
		dim:     dim,
	}, nil
}

// Dimension returns the embedding dimension. Until the first call
// returns, this is the table value (or the 768 default for an unlisted
// model); afterwards it reflects what the model actually produced.
func (e *OllamaEmbedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}

// ModelName identifies the underlying Ollama model.
func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

func (e *OllamaEmbedder) observeDimension(n int) {
	if n == 0 {
		return
	}
	e.mu.Lock()
	e.dim = n
	e.mu.Unlock()
}

// EmbedText generates an embedding for a single text.
func (e *OllamaEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	type requestPayload struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}

	jsonData, err := json.Marshal(requestPayload{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/api/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	type responsePayload struct {
		Embedding []float64 `json:"embedding"`
	}

	var response responsePayload
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	result := make([]float32, len(response.Embedding))
	for i, v := range response.Embedding {
		result[i] = float32(v)
	}
	e.observeDimension(len(result))

	return result, nil
}

// EmbedBatch generates embeddings for multiple texts. Ollama's
// embeddings endpoint takes one prompt per call, so the batch is a
// sequential loop.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		result[i] = embedding
	}
	return result, nil
}
