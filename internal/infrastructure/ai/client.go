// Package ai talks to OpenAI-compatible chat completion endpoints.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"maadoctor.app/cli/internal/core/domainerr"
)

const (
	completionsPath  = "v1/chat/completions"
	defaultModel     = "deepseek-chat"
	defaultMaxTokens = 2000
	defaultTimeout   = 30 * time.Second
	maxReplySize     = 1 << 20
)

// Options configures a Client.
type Options struct {
	URL         string
	Key         string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      hclog.Logger
}

// Client sends single-turn chat completion requests.
type Client struct {
	endpoint string
	opts     Options
	logger   hclog.Logger
}

func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid ai url %q: %w", opts.URL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid ai url %q: scheme must be http or https", opts.URL)
	}
	if opts.Key == "" {
		return nil, errors.New("ai key is required")
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Client{
		endpoint: base.JoinPath(completionsPath).String(),
		opts:     opts,
		logger:   opts.Logger.Named("ai"),
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Complete sends a system and a user message and returns the first choice's
// content. Transport and status failures are *domainerr.FetchError.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	payload, err := json.Marshal(completionRequest{
		Model: c.opts.Model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &domainerr.FetchError{URL: c.endpoint, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.Key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "maadoctor")

	start := time.Now()
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return "", &domainerr.FetchError{URL: c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return "", &domainerr.FetchError{URL: c.endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &domainerr.FetchError{URL: c.endpoint, Status: resp.StatusCode, Err: errors.New(snippet(body))}
	}

	var decoded completionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("completion response has no choices")
	}
	c.logger.Debug("completion received", "model", c.opts.Model, "duration", time.Since(start), "bytes", len(body))
	return decoded.Choices[0].Message.Content, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}
