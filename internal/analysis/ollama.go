package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/user/commitbot/internal/github"
)

// OllamaConfig holds the configuration for an Ollama chat endpoint.
type OllamaConfig struct {
	BaseURL string // e.g. http://localhost:11434 or https://ollama.com
	Model   string // e.g. qwen3, llama3.1
	Token   string // Bearer token for Ollama Cloud (empty = no auth)
	Timeout time.Duration
}

// OllamaEnricher summarizes commits using the Ollama /api/chat endpoint.
type OllamaEnricher struct {
	cfg        OllamaConfig
	httpClient *http.Client
}

// NewOllamaEnricher creates a new Ollama-backed enricher.
func NewOllamaEnricher(cfg OllamaConfig) *OllamaEnricher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OllamaEnricher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// ModelName returns the chat model identifier.
func (o *OllamaEnricher) ModelName() string {
	return o.cfg.Model
}

// Summarize asks the model for a short analysis of the commit.
func (o *OllamaEnricher) Summarize(ctx context.Context, commit github.Commit) (*Result, error) {
	payload := map[string]interface{}{
		"model": o.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildPrompt(commit)},
		},
		"stream": false,
		"format": "json",
		"options": map[string]interface{}{
			"temperature": 0.3,
		},
	}

	body, err := o.post(ctx, "/api/chat", payload)
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ollama chat decode: %w", err)
	}

	return parseResponse(resp.Message.Content)
}

// post is a helper for POST requests to the Ollama endpoint (with optional bearer token).
func (o *OllamaEnricher) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.Token)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
