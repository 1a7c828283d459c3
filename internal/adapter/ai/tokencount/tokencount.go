// Package tokencount provides token counting used for chunk budgeting and
// prompt-size guards.
//
// It uses tiktoken-go, a Go port of OpenAI's official tiktoken library.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter provides thread-safe token counting for LLM models.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{
		encodingCache: make(map[string]*tiktoken.Tiktoken),
	}
}

// DefaultCounter is a global token counter instance.
var DefaultCounter = NewCounter()

// getEncodingForModel returns the tiktoken encoding for a model, cached.
func (c *Counter) getEncodingForModel(model string) (*tiktoken.Tiktoken, error) {
	normalized := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[normalized]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[normalized]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(normalized)
	if err != nil {
		// cl100k_base covers GPT-4, GPT-3.5-turbo and most modern models
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model),
			slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	c.encodingCache[normalized] = enc
	return enc, nil
}

// normalizeModelName converts model IDs to tiktoken-compatible names.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	if strings.Contains(model, "/") {
		parts := strings.Split(model, "/")
		model = parts[len(parts)-1]
	}
	switch {
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	case strings.Contains(model, "gpt-4"):
		return "gpt-4"
	default:
		// cl100k_base is a reasonable approximation for other families
		return "gpt-4"
	}
}

// CountTokens counts the number of tokens in a text string for a given model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountTokensOrEstimate counts tokens, falling back to a ~4 chars/token
// estimate when the encoder cannot be loaded.
func (c *Counter) CountTokensOrEstimate(text, model string) int {
	n, err := c.CountTokens(text, model)
	if err != nil {
		return len(text) / 4
	}
	return n
}

// CountTokensDefault uses the default counter to count tokens.
func CountTokensDefault(text, model string) (int, error) {
	return DefaultCounter.CountTokens(text, model)
}
