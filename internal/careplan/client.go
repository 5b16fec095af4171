// Package careplan generates pharmacist care plans through an external
// language model API. The client speaks the Anthropic messages wire
// format; generated plans are returned as plain text for the order
// workflow to persist.
package careplan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carebridge/platform/internal/shared/config"
	"github.com/carebridge/platform/internal/shared/errors"
)

const serviceName = "care plan service"

// Client calls the care plan generation API
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewClient creates a care plan client from configuration
func NewClient(cfg config.CarePlanConfig) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.URL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Generate produces a fresh care plan for a new or updated order
func (c *Client) Generate(ctx context.Context, req PlanRequest) (string, error) {
	return c.complete(ctx, generationPrompt(req))
}

// Regenerate produces a revised care plan incorporating pharmacist
// feedback. The result is a candidate only; nothing is persisted here.
func (c *Client) Regenerate(ctx context.Context, currentPlan string, revisions []Revision) (string, error) {
	return c.complete(ctx, revisionPrompt(currentPlan, revisions))
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages:    []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.Unavailable(serviceName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", errors.UpstreamAuth(serviceName)
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.UpstreamMalformed(serviceName,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(snippet)))
	}

	var result messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.UpstreamMalformed(serviceName, err)
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	plan := strings.TrimSpace(text.String())
	if plan == "" {
		return "", errors.UpstreamMalformed(serviceName, fmt.Errorf("response contained no text content"))
	}

	return plan, nil
}
