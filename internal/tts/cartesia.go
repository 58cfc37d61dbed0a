package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/voyxa/voice-webhook/internal/audio"
	"github.com/voyxa/voice-webhook/internal/config"
	"github.com/voyxa/voice-webhook/internal/resilience"
)

const cartesiaVersion = "2024-06-10"

// CartesiaClient implements Synthesizer using Cartesia's bytes endpoint
type CartesiaClient struct {
	apiKey     string
	apiURL     string
	voiceID    string
	modelID    string
	httpClient *http.Client
}

// CartesiaRequest represents the request payload for Cartesia TTS API
type CartesiaRequest struct {
	ModelID      string               `json:"model_id"`
	Transcript   string               `json:"transcript"`
	Voice        CartesiaVoice        `json:"voice"`
	OutputFormat CartesiaOutputFormat `json:"output_format"`
}

// CartesiaVoice selects a voice by id
type CartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

// CartesiaOutputFormat requests raw PCM so no decoding is needed
type CartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// NewCartesiaClient creates a new Cartesia TTS client
func NewCartesiaClient(cfg *config.Config) *CartesiaClient {
	return &CartesiaClient{
		apiKey:     cfg.CartesiaAPIKey,
		apiURL:     cfg.CartesiaAPIURL,
		voiceID:    cfg.CartesiaVoiceID,
		modelID:    cfg.CartesiaModelID,
		httpClient: &http.Client{Timeout: cfg.UpstreamTimeoutDuration()},
	}
}

// Name returns the backend identifier
func (c *CartesiaClient) Name() string { return config.TTSCartesia }

// Synthesize converts text to 16 kHz PCM
func (c *CartesiaClient) Synthesize(ctx context.Context, text string) (*Speech, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	reqBody := CartesiaRequest{
		ModelID:    c.modelID,
		Transcript: text,
		Voice:      CartesiaVoice{Mode: "id", ID: c.voiceID},
		OutputFormat: CartesiaOutputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: audio.SampleRate,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &resilience.StatusError{Service: "cartesia", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading cartesia audio: %w", err)
	}
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}
	// Drop a trailing half sample rather than rejecting the whole reply
	pcm = pcm[:len(pcm)&^1]

	samples, err := audio.BytesToSamples(pcm)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}

	return &Speech{Samples: samples, SampleRate: audio.SampleRate}, nil
}

// Close is a no-op; connections are per-request
func (c *CartesiaClient) Close() error { return nil }
