// Package llm wraps the external model providers: an OpenAI-compatible chat
// completions API for text generation and an Ollama-style API for embeddings.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client handles text generation and embedding over HTTP.
type Client struct {
	chatURL    string
	chatKey    string
	chatModel  string
	embedURL   string
	embedModel string
	client     *http.Client
}

// Config holds provider endpoints and models.
type Config struct {
	ChatURL    string // OpenAI-compatible chat completions endpoint
	ChatKey    string // bearer token; empty means generation is unconfigured
	ChatModel  string
	EmbedURL   string // Ollama API base URL
	EmbedModel string
}

// NewClient creates a model client with sensible defaults.
func NewClient(cfg Config) *Client {
	if cfg.ChatURL == "" {
		cfg.ChatURL = "https://api.groq.com/openai/v1/chat/completions"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "moonshotai/kimi-k2-instruct-0905"
	}
	if cfg.EmbedURL == "" {
		cfg.EmbedURL = "http://localhost:11434"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "nomic-embed-text" // 768 dims
	}
	return &Client{
		chatURL:    cfg.ChatURL,
		chatKey:    cfg.ChatKey,
		chatModel:  cfg.ChatModel,
		embedURL:   cfg.EmbedURL,
		embedModel: cfg.EmbedModel,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// GenOpts tunes one generation call.
type GenOpts struct {
	MaxTokens   int
	Temperature float64
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends a system prompt plus user input and returns the raw text of
// the first choice. Callers are responsible for extracting structure from it.
func (c *Client) Generate(ctx context.Context, system, user string, opts GenOpts) (string, error) {
	if c.chatKey == "" {
		return "", fmt.Errorf("generation API key not configured")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}

	reqBody := chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.chatKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request (took %s): %w", time.Since(start), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat error (status %d, took %s): %s", resp.StatusCode, time.Since(start), string(body))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("chat error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}

	return result.Choices[0].Message.Content, nil
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed generates an embedding for the given text. Deterministic per model
// version; the dimension is fixed by the embedding model.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	reqBody := embeddingRequest{
		Model:  c.embedModel,
		Prompt: text,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.embedURL+"/api/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding error (status %d): %s", resp.StatusCode, string(body))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	return result.Embedding, nil
}
