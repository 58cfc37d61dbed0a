package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/voyxa/voice-webhook/internal/config"
	"github.com/voyxa/voice-webhook/internal/resilience"
)

// HuggingFaceClient implements Generator using the Hugging Face Inference API
type HuggingFaceClient struct {
	apiToken   string
	modelURL   string
	httpClient *http.Client
}

// huggingFaceRequest represents the request payload for a text-generation model
type huggingFaceRequest struct {
	Inputs     string                `json:"inputs"`
	Parameters huggingFaceParameters `json:"parameters"`
	Options    huggingFaceOptions    `json:"options"`
}

type huggingFaceParameters struct {
	MaxLength          int    `json:"max_length,omitempty"`
	NumReturnSequences int    `json:"num_return_sequences,omitempty"`
	Truncation         string `json:"truncation,omitempty"`
}

type huggingFaceOptions struct {
	WaitForModel bool `json:"wait_for_model"`
	UseCache     bool `json:"use_cache"`
}

type huggingFaceGeneration struct {
	GeneratedText string `json:"generated_text"`
}

// NewHuggingFaceClient creates a new Hugging Face dialogue client
func NewHuggingFaceClient(cfg *config.Config) *HuggingFaceClient {
	return &HuggingFaceClient{
		apiToken:   cfg.HuggingFaceAPIToken,
		modelURL:   strings.TrimRight(cfg.HuggingFaceAPIURL, "/") + "/" + cfg.HuggingFaceModel,
		httpClient: &http.Client{Timeout: cfg.UpstreamTimeoutDuration()},
	}
}

// Name returns the backend identifier
func (c *HuggingFaceClient) Name() string { return config.DialogueHuggingFace }

// Generate sends prompt to the hosted model and returns the first generated text
func (c *HuggingFaceClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	reqBody := huggingFaceRequest{
		Inputs: prompt,
		Parameters: huggingFaceParameters{
			MaxLength:          opts.MaxTokens,
			NumReturnSequences: opts.NumReturnSequences,
		},
		Options: huggingFaceOptions{WaitForModel: true},
	}
	if opts.Truncate {
		reqBody.Parameters.Truncation = "longest_first"
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.modelURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &resilience.StatusError{Service: "huggingface", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var generations []huggingFaceGeneration
	if err := json.NewDecoder(resp.Body).Decode(&generations); err != nil {
		return "", fmt.Errorf("decoding generation: %w", err)
	}
	if len(generations) == 0 {
		return "", ErrEmptyGeneration
	}

	text := strings.TrimSpace(generations[0].GeneratedText)
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}
