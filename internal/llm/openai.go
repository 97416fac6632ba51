package llm

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/tbourn/stelgent-backend/internal/config"
	"github.com/tbourn/stelgent-backend/internal/observability"
)

// OpenAIClient is a Completer backed by an OpenAI-compatible endpoint.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float32
	maxRetries  int

	client *openai.Client

	newBackOff func() backoff.BackOff // test seam
}

// NewOpenAIClient builds a client from configuration. A missing server key
// is not an error here: requests may still carry a per-user key.
func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	c := &OpenAIClient{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		newBackOff:  func() backoff.BackOff { return newCappedJitter() },
	}
	if cfg.APIKey != "" {
		c.client = openai.NewClientWithConfig(c.clientConfig(cfg.APIKey))
	}
	return c
}

func (c *OpenAIClient) clientConfig(key string) openai.ClientConfig {
	oc := openai.DefaultConfig(key)
	if c.baseURL != "" {
		oc.BaseURL = strings.TrimRight(c.baseURL, "/")
	}
	return oc
}

func (c *OpenAIClient) clientFor(key string) (*openai.Client, error) {
	if key != "" && key != c.apiKey {
		return openai.NewClientWithConfig(c.clientConfig(key)), nil
	}
	if c.client == nil {
		return nil, ErrNoAPIKey
	}
	return c.client, nil
}

// Complete sends the request, retrying transient failures with capped
// exponential backoff plus jitter.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	cli, err := c.clientFor(req.APIKey)
	if err != nil {
		observability.CompletionRequests.WithLabelValues("error").Inc()
		return "", err
	}

	creq := openai.ChatCompletionRequest{
		Model:       firstNonEmpty(req.Model, c.model),
		MaxTokens:   firstPositive(req.MaxTokens, c.maxTokens),
		Temperature: c.temperature,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
	}
	if req.Temperature != nil {
		creq.Temperature = *req.Temperature
	}
	for _, m := range req.Messages {
		creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	log := zerolog.Ctx(ctx)
	attempt := 0
	notify := func(err error, wait time.Duration) {
		observability.CompletionRetries.Inc()
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Str("model", creq.Model).
			Msg("completion attempt failed, retrying")
	}

	text, err := retry(ctx, firstPositive(req.MaxRetries, c.maxRetries), c.newBackOff(), notify,
		func(ctx context.Context) (string, error) {
			attempt++
			resp, err := cli.CreateChatCompletion(ctx, creq)
			if err != nil {
				return "", err
			}
			if len(resp.Choices) == 0 {
				return "", backoff.Permanent(ErrEmptyResponse)
			}
			return resp.Choices[0].Message.Content, nil
		})
	if err != nil {
		observability.CompletionRequests.WithLabelValues("error").Inc()
		log.Error().Err(err).Int("attempts", attempt).Str("model", creq.Model).Msg("completion failed")
		return "", err
	}
	observability.CompletionRequests.WithLabelValues("ok").Inc()
	return text, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
