package dialogue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voyxa/voice-webhook/internal/config"
	"github.com/voyxa/voice-webhook/internal/resilience"
)

// maxPromptRunes bounds the transcript sent to the chat model when truncation is allowed
const maxPromptRunes = 4000

const systemPrompt = "You are Voyxa, a friendly voice assistant on a phone call. " +
	"Reply in one or two short spoken sentences without markdown, lists or emoji."

// OpenAIClient implements Generator using the Chat Completions API
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI dialogue client
func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.UpstreamTimeoutDuration()}
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.OpenAIModel,
	}
}

// Name returns the backend identifier
func (c *OpenAIClient) Name() string { return config.DialogueOpenAI }

// Generate asks the chat model for a single reply to prompt
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if opts.Truncate {
		prompt = truncateRunes(prompt, maxPromptRunes)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: opts.MaxTokens,
		N:         opts.NumReturnSequences,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyGeneration
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}

// wrapOpenAIError maps API errors onto StatusError so retry can classify them
func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &resilience.StatusError{Service: "openai", StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &resilience.StatusError{Service: "openai", StatusCode: reqErr.HTTPStatusCode}
	}
	return fmt.Errorf("openai chat completion: %w", err)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
