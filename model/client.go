package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// completionClient talks to a llama-server completion endpoint.
type completionClient struct {
	baseURL string
	http    *http.Client
}

func newCompletionClient(baseURL string) *completionClient {
	// No client-level timeout: generation length is bounded by the
	// request context, not wall clock.
	return &completionClient{baseURL: baseURL, http: &http.Client{}}
}

type completionRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Stop        []string `json:"stop,omitempty"`
	CachePrompt bool     `json:"cache_prompt"`
}

type completionResponse struct {
	Content string `json:"content"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one completion request and returns the trimmed output text.
func (c *completionClient) Complete(ctx context.Context, prompt string, maxTokens int, stop []string) (string, error) {
	reqBody := completionRequest{
		Prompt:      prompt,
		NPredict:    maxTokens,
		Stop:        stop,
		CachePrompt: true,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/completion", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion error (status %d): %s", resp.StatusCode, string(body))
	}

	var result completionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse completion response: %w (body: %s)", err, string(body))
	}
	if result.Error != nil {
		return "", fmt.Errorf("completion error: %s", result.Error.Message)
	}

	return strings.TrimSpace(result.Content), nil
}
