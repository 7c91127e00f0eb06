// Package openai is a minimal HTTP client for an OpenAI-compatible API,
// covering the two call types the engine needs: text embedding and chat
// completion. Calls are rate limited and guarded by a circuit breaker.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ciudadano-digital/civica/pkg/resilience"
)

// Message is a single chat-completion message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Options configures the client.
type Options struct {
	BaseURL    string
	APIKey     string
	EmbedModel string
	ChatModel  string
	Timeout    time.Duration
	// RatePerSecond caps outgoing requests; zero disables limiting.
	RatePerSecond float64
	Burst         int
}

// DefaultOptions returns production defaults matching the index schema
// (text-embedding-3-small produces 1536-dimension vectors).
func DefaultOptions() Options {
	return Options{
		BaseURL:    "https://api.openai.com/v1",
		EmbedModel: "text-embedding-3-small",
		ChatModel:  "gpt-4o-mini",
		Timeout:    60 * time.Second,
	}
}

// Client implements the embedding and chat-completion boundary.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// New creates a Client. Zero option fields fall back to DefaultOptions.
func New(opts Options) *Client {
	def := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.EmbedModel == "" {
		opts.EmbedModel = def.EmbedModel
	}
	if opts.ChatModel == "" {
		opts.ChatModel = def.ChatModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &Client{
		opts:    opts,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: limiter,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed converts text into a fixed-dimension vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := c.guarded(ctx, func(ctx context.Context) error {
		var resp embedResponse
		if err := c.post(ctx, "/embeddings", embedRequest{Model: c.opts.EmbedModel, Input: text}, &resp); err != nil {
			return fmt.Errorf("openai: embed: %w", err)
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("openai: embed: empty response")
		}
		out = make([]float32, len(resp.Data[0].Embedding))
		for i, v := range resp.Data[0].Embedding {
			out[i] = float32(v)
		}
		return nil
	})
	return out, err
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Chat generates text from a message list at the given temperature.
func (c *Client) Chat(ctx context.Context, msgs []Message, temperature float32) (string, error) {
	var out string
	err := c.guarded(ctx, func(ctx context.Context) error {
		var resp chatResponse
		if err := c.post(ctx, "/chat/completions", chatRequest{Model: c.opts.ChatModel, Messages: msgs, Temperature: temperature}, &resp); err != nil {
			return fmt.Errorf("openai: chat: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("openai: chat: empty response")
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	return out, err
}

// guarded applies the rate limit and circuit breaker around an API call.
func (c *Client) guarded(ctx context.Context, f func(context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return c.breaker.Call(ctx, f)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
