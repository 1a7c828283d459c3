// Package ai provides the OpenAI-compatible client and helpers used by the app.
package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/resume-rag/internal/adapter/observability"
	"github.com/fairyhunter13/resume-rag/internal/config"
	"github.com/fairyhunter13/resume-rag/internal/domain"
)

// Client implements domain.AIClient against any OpenAI-compatible API
// (chat completions + embeddings on one base URL).
type Client struct {
	cfg     config.Config
	chatHC  *http.Client
	embedHC *http.Client
}

// New constructs a client with sensible timeouts.
func New(cfg config.Config) *Client {
	transport := otelhttp.NewTransport(http.DefaultTransport)
	return &Client{
		cfg:     cfg,
		chatHC:  &http.Client{Timeout: 120 * time.Second, Transport: transport},
		embedHC: &http.Client{Timeout: 60 * time.Second, Transport: transport},
	}
}

func (c *Client) newBackoff(ctx domain.Context) backoff.BackOffContext {
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime, expo.InitialInterval, expo.MaxInterval, expo.Multiplier = c.cfg.GetAIBackoffConfig()
	return backoff.WithContext(expo, ctx)
}

// ChatJSON calls chat completions and returns the first message content.
// 429 and 5xx responses are retried with exponential backoff; 4xx responses
// are permanent failures.
func (c *Client) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if c.cfg.OpenAIAPIKey == "" {
		return "", fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}
	body := map[string]any{
		"model":       c.cfg.ChatModel,
		"temperature": 0.2,
		"max_tokens":  maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	b, _ := json.Marshal(body)
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	op := func() error {
		start := time.Now()
		// Recreate request each attempt to avoid reusing consumed bodies
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OpenAIBaseURL+"/chat/completions", bytes.NewReader(b))
		r.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.chatHC.Do(r)
		observability.AIRequestsTotal.WithLabelValues("openai", "chat").Inc()
		observability.AIRequestDuration.WithLabelValues("openai", "chat").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("ai provider rate limited", slog.String("op", "chat"), slog.Int("status", resp.StatusCode))
			return fmt.Errorf("rate limited: 429")
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			slog.Warn("ai provider 4xx", slog.String("op", "chat"), slog.Int("status", resp.StatusCode), slog.String("body", snippet(bodyBytes)))
			return backoff.Permanent(fmt.Errorf("chat status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			slog.Error("ai provider non-2xx", slog.String("op", "chat"), slog.Int("status", resp.StatusCode), slog.String("body", snippet(bodyBytes)))
			return fmt.Errorf("chat status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			slog.Error("ai provider decode error", slog.String("op", "chat"), slog.Any("error", err))
			return err
		}
		return nil
	}
	if err := backoff.Retry(op, c.newBackoff(ctx)); err != nil {
		return "", fmt.Errorf("op=ai.ChatJSON: %w", mapUpstreamErr(err))
	}
	if len(out.Choices) == 0 {
		return "", errors.New("empty choices from chat completions")
	}
	return out.Choices[0].Message.Content, nil
}

// Embed calls the embeddings endpoint and returns vectors in input order.
func (c *Client) Embed(ctx domain.Context, texts []string) ([][]float32, error) {
	if c.cfg.OpenAIAPIKey == "" || c.cfg.EmbeddingsModel == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY or EMBEDDINGS_MODEL missing", domain.ErrInvalidArgument)
	}
	body := map[string]any{
		"model": c.cfg.EmbeddingsModel,
		"input": texts,
	}
	b, _ := json.Marshal(body)
	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	op := func() error {
		start := time.Now()
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OpenAIBaseURL+"/embeddings", bytes.NewReader(b))
		r.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.embedHC.Do(r)
		observability.AIRequestsTotal.WithLabelValues("openai", "embed").Inc()
		observability.AIRequestDuration.WithLabelValues("openai", "embed").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("ai provider rate limited", slog.String("op", "embed"), slog.Int("status", resp.StatusCode))
			return fmt.Errorf("rate limited: 429")
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			slog.Warn("ai provider 4xx", slog.String("op", "embed"), slog.Int("status", resp.StatusCode), slog.String("body", snippet(bodyBytes)))
			return backoff.Permanent(fmt.Errorf("embed status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			slog.Error("ai provider non-2xx", slog.String("op", "embed"), slog.Int("status", resp.StatusCode), slog.String("body", snippet(bodyBytes)))
			return fmt.Errorf("embed status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			slog.Error("ai provider decode error", slog.String("op", "embed"), slog.Any("error", err))
			return err
		}
		return nil
	}
	if err := backoff.Retry(op, c.newBackoff(ctx)); err != nil {
		return nil, fmt.Errorf("op=ai.Embed: %w", mapUpstreamErr(err))
	}
	if len(out.Data) == 0 {
		return nil, errors.New("empty data from embeddings")
	}
	res := make([][]float32, len(out.Data))
	for i := range out.Data {
		v := make([]float32, len(out.Data[i].Embedding))
		for j := range out.Data[i].Embedding {
			v[j] = float32(out.Data[i].Embedding[j])
		}
		res[i] = v
	}
	return res, nil
}

func snippet(b []byte) string {
	if len(b) > 512 {
		b = b[:512]
	}
	return string(b)
}

// mapUpstreamErr translates transport failures into the domain error taxonomy.
func mapUpstreamErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidArgument):
		return err
	}
	msg := err.Error()
	switch {
	case containsAny(msg, "429", "rate limited"):
		return fmt.Errorf("%w: %v", domain.ErrUpstreamRateLimit, err)
	case containsAny(msg, "context deadline exceeded", "Client.Timeout"):
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	default:
		return err
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
