// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/paperblog/internal/httputil"
	"github.com/pdiddy/paperblog/pkg/types"
)

const defaultMaxTokens = 4000

// OpenAIBackend generates blog posts through an OpenAI-compatible chat
// completion API (ModelScope inference, OpenAI, or any compatible gateway).
type OpenAIBackend struct {
	cfg     types.GenerationConfig
	prompts *PromptManager
	client  *http.Client
}

// NewOpenAIBackend builds a backend from the generation configuration,
// loading the prompt templates eagerly so a broken prompts file fails
// before any conversion work is wasted.
func NewOpenAIBackend(cfg types.GenerationConfig, client *http.Client) (*OpenAIBackend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("generation base_url is not configured")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("generation model is not configured")
	}

	prompts, err := NewPromptManager(cfg.PromptsPath)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIBackend{cfg: cfg, prompts: prompts, client: client}, nil
}

// chatRequest is the request body for the chat completions API.
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Stream    bool          `json:"stream"`
}

// chatMessage is a single message in the conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the response body from the chat completions API.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate renders the blog prompt, calls the API, and returns the Markdown
// inside the response's fenced block. A response without a usable block is
// retried with a fresh completion, up to cfg.MaxRechat attempts total.
func (o *OpenAIBackend) Generate(ctx context.Context, paper string, manifest types.Manifest) (string, error) {
	system, err := o.prompts.SystemMessage(blogStage)
	if err != nil {
		return "", err
	}

	vars := map[string]string{
		"Paper":   paper,
		"Figures": FigureList(manifest),
	}
	if o.cfg.Language != "" {
		vars["Language"] = o.cfg.Language
	}
	prompt, err := o.prompts.RenderPrompt(blogStage, vars)
	if err != nil {
		return "", err
	}

	attempts := o.cfg.MaxRechat
	if attempts <= 0 {
		attempts = 2
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		raw, err := o.complete(ctx, system, prompt)
		if err != nil {
			return "", err
		}
		if md := ExtractMarkdown(raw); md != "" {
			return md, nil
		}
		lastErr = fmt.Errorf("model response carried no markdown block (attempt %d/%d)", i+1, attempts)
	}
	return "", lastErr
}

// complete performs one chat completion round trip.
func (o *OpenAIBackend) complete(ctx context.Context, system, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: o.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens: o.cfg.MaxTokens,
	}
	if reqBody.MaxTokens <= 0 {
		reqBody.MaxTokens = defaultMaxTokens
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(o.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}
	if o.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", o.cfg.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, o.client, req, o.cfg.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("calling chat API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(cResp.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}
	return cResp.Choices[0].Message.Content, nil
}
