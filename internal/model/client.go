// Package model is a minimal Bedrock InvokeModel client for text completions.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voxelpilot.ai/internal/logging"
	"voxelpilot.ai/internal/metrics"
)

// ErrModelUnavailable covers transport errors, timeouts and non-2xx replies.
var ErrModelUnavailable = errors.New("model unavailable")

const maxResponseBytes = 1 << 20

type Config struct {
	Endpoint string // e.g. https://bedrock-runtime.us-east-1.amazonaws.com
	Region   string
	ModelID  string

	MaxOutputTokens int
	Temperature     float64
	StopSequences   []string
	Timeout         time.Duration

	Credentials Credentials
	HTTPClient  *http.Client
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

// Request is the body of one InvokeModel call.
type Request struct {
	Prompt            string   `json:"prompt"`
	MaxTokensToSample int      `json:"max_tokens_to_sample"`
	Temperature       float64  `json:"temperature"`
	StopSequences     []string `json:"stop_sequences,omitempty"`
}

type response struct {
	Completion string `json:"completion"`
	StopReason string `json:"stop_reason,omitempty"`
}

type Client struct {
	cfg      Config
	endpoint string
	log      zerolog.Logger
	http     *http.Client
	now      func() time.Time
}

// CredentialsFromEnv reads the standard AWS_* variables.
func CredentialsFromEnv() (Credentials, error) {
	c := Credentials{
		AccessKeyID:     strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY")),
		SessionToken:    strings.TrimSpace(os.Getenv("AWS_SESSION_TOKEN")),
	}
	if !c.valid() {
		return c, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required")
	}
	return c, nil
}

func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" && cfg.Region != "" {
		endpoint = "https://bedrock-runtime." + cfg.Region + ".amazonaws.com"
	}
	if cfg.Region == "" || cfg.ModelID == "" {
		return nil, fmt.Errorf("region and model id are required")
	}
	if !cfg.Credentials.valid() {
		return nil, fmt.Errorf("model credentials are required")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint: %s", endpoint)
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		cfg:      cfg,
		endpoint: strings.TrimRight(u.String(), "/"),
		log:      logging.Component(cfg.Logger, "model").With().Str("model_id", cfg.ModelID).Logger(),
		http:     hc,
		now:      time.Now,
	}, nil
}

// NewRequest builds the configured request for prompt.
func (c *Client) NewRequest(prompt string) Request {
	return Request{
		Prompt:            prompt,
		MaxTokensToSample: c.cfg.MaxOutputTokens,
		Temperature:       c.cfg.Temperature,
		StopSequences:     c.cfg.StopSequences,
	}
}

// Complete sends exactly one InvokeModel request and returns the completion.
func (c *Client) Complete(ctx context.Context, r Request) (string, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return "", err
	}

	escapedID := escapeSegment(c.cfg.ModelID)
	requestURL := c.endpoint + "/model/" + escapedID + "/invoke"
	canonicalURI := "/model/" + escapeSegment(escapedID) + "/invoke"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	signRequest(req, canonicalURI, body, c.cfg.Credentials, c.cfg.Region, c.now())

	start := time.Now()
	resp, err := c.http.Do(req)
	c.cfg.Metrics.ObserveModel(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return "", fmt.Errorf("%w: status=%d body=%s", ErrModelUnavailable, resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrModelUnavailable, err)
	}
	var out response
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("%w: decode body: %v", ErrModelUnavailable, err)
	}
	return out.Completion, nil
}

// Generate completes prompt under the configured per-call timeout.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return c.Complete(ctx, c.NewRequest(prompt))
}

// Invoke is Generate with every failure logged and swallowed; it returns ""
// when no completion could be obtained.
func (c *Client) Invoke(ctx context.Context, prompt string) string {
	out, err := c.Generate(ctx, prompt)
	if err != nil {
		c.log.Warn().Err(err).Msg("model invoke failed")
		return ""
	}
	return out
}
