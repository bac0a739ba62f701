// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/northbound/rag-core/internal/apierr"
)

// Client is the external LLM contract: generate(prompt,
// max_tokens?, temperature?) -> string. Absence of a configured client is
// permitted; callers degrade to extractive responses.
type Client interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// Usage reports token accounting for a single completion call.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
}

// OpenAIClient calls the OpenAI chat completions endpoint directly over
// net/http; no SDK dependency is introduced for chat completions.
type OpenAIClient struct {
	apiKey string
	model  string
	client *http.Client

	lastUsage Usage
}

// NewOpenAIClient reads OPENAI_API_KEY (and optionally OPENAI_CHAT_MODEL)
// from the environment.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, apierr.New(apierr.CodeDependencyError, "OPENAI_API_KEY not set")
	}
	model := os.Getenv("OPENAI_CHAT_MODEL")
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	return &OpenAIClient{apiKey: apiKey, model: model, client: &http.Client{Timeout: 30 * time.Second}}, nil
}

// Generate sends prompt as a single user turn and returns the completion.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 512
	}

	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a helpful assistant answering questions from retrieved document context."},
			{"role": "user", "content": prompt},
		},
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", apierr.Wrap(apierr.CodeDependencyError, "marshal chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", apierr.Wrap(apierr.CodeDependencyError, "build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apierr.Wrap(apierr.CodeDependencyError, "chat completion request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", apierr.New(apierr.CodeDependencyError, fmt.Sprintf("openai chat API error %d: %s", resp.StatusCode, string(body)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", apierr.Wrap(apierr.CodeDependencyError, "decode chat response", err)
	}
	if len(result.Choices) == 0 {
		return "", apierr.New(apierr.CodeDependencyError, "no choices returned from chat completion")
	}

	c.lastUsage = Usage{Model: result.Model, InputTokens: result.Usage.PromptTokens, OutputTokens: result.Usage.CompletionTokens}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// LastUsage returns token accounting for the most recent Generate call.
func (c *OpenAIClient) LastUsage() Usage {
	return c.lastUsage
}

var _ Client = (*OpenAIClient)(nil)
