package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported backend names
const (
	DialogueHuggingFace = "huggingface"
	DialogueOpenAI      = "openai"

	TTSCartesia = "cartesia"
	TTSPiper    = "piper"
)

// Config holds all configuration for the voice webhook service
type Config struct {
	// Server configuration
	Port               string `envconfig:"PORT" default:"8080"`
	ServerWriteTimeout int    `envconfig:"SERVER_WRITE_TIMEOUT" default:"120"` // seconds, covers a full dialogue + TTS turn
	UpstreamTimeout    int    `envconfig:"UPSTREAM_TIMEOUT" default:"12"`      // seconds per model request, below Twilio's 15s webhook limit

	// Public base URL for this service (e.g. https://xxx.ngrok-free.dev when behind ngrok).
	// Used to build the <Play> URL for generated audio. Optional; if unset the
	// URL is derived from the incoming request.
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:""`

	// Twilio account configuration
	TwilioAccountSID  string `envconfig:"TWILIO_ACCOUNT_SID" required:"true"`
	TwilioAuthToken   string `envconfig:"TWILIO_AUTH_TOKEN" required:"true"`
	TwilioPhoneNumber string `envconfig:"TWILIO_PHONE_NUMBER" default:""`

	// TwiML voice options
	SayVoice       string `envconfig:"SAY_VOICE" default:"alice"`
	GatherLanguage string `envconfig:"GATHER_LANGUAGE" default:"en-US"`

	// Dialogue model configuration
	DialogueProvider  string `envconfig:"DIALOGUE_PROVIDER" default:"huggingface"` // huggingface, openai
	DialogueMaxTokens int    `envconfig:"DIALOGUE_MAX_TOKENS" default:"100"`

	HuggingFaceAPIToken string `envconfig:"HF_API_TOKEN" default:""`
	HuggingFaceAPIURL   string `envconfig:"HF_API_URL" default:"https://api-inference.huggingface.co/models"`
	HuggingFaceModel    string `envconfig:"HF_MODEL" default:"facebook/blenderbot-400M-distill"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:""`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	// TTS configuration
	TTSProvider string `envconfig:"TTS_PROVIDER" default:"cartesia"` // cartesia, piper

	CartesiaAPIKey  string `envconfig:"CARTESIA_API_KEY" default:""`
	CartesiaAPIURL  string `envconfig:"CARTESIA_API_URL" default:"https://api.cartesia.ai/tts/bytes"`
	CartesiaVoiceID string `envconfig:"CARTESIA_VOICE_ID" default:"a0e99841-438c-4a64-b679-ae501e7d6091"`
	CartesiaModelID string `envconfig:"CARTESIA_MODEL_ID" default:"sonic-english"`

	PiperEndpoint string `envconfig:"PIPER_ENDPOINT" default:"localhost:10200"`
	PiperVoice    string `envconfig:"PIPER_VOICE" default:"en_US-lessac-medium"`

	// Generated audio storage
	AudioDir              string `envconfig:"AUDIO_DIR" default:"static"`
	AudioRetention        int    `envconfig:"AUDIO_RETENTION" default:"600"`     // seconds a generated file is kept
	AudioSweepInterval    int    `envconfig:"AUDIO_SWEEP_INTERVAL" default:"60"` // seconds between sweeps
	AudioDeleteAfterServe bool   `envconfig:"AUDIO_DELETE_AFTER_SERVE" default:"false"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"2"`             // Maximum attempts per model call
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"200"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field requirements envconfig cannot express
func (c *Config) Validate() error {
	if c.TwilioAccountSID == "" {
		return fmt.Errorf("TWILIO_ACCOUNT_SID is required")
	}
	if c.TwilioAuthToken == "" {
		return fmt.Errorf("TWILIO_AUTH_TOKEN is required")
	}

	switch c.DialogueProvider {
	case DialogueHuggingFace:
		if c.HuggingFaceAPIToken == "" {
			return fmt.Errorf("HF_API_TOKEN is required for dialogue provider %q", c.DialogueProvider)
		}
	case DialogueOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for dialogue provider %q", c.DialogueProvider)
		}
	default:
		return fmt.Errorf("unknown DIALOGUE_PROVIDER %q", c.DialogueProvider)
	}

	switch c.TTSProvider {
	case TTSCartesia:
		if c.CartesiaAPIKey == "" {
			return fmt.Errorf("CARTESIA_API_KEY is required for tts provider %q", c.TTSProvider)
		}
	case TTSPiper:
		if c.PiperEndpoint == "" {
			return fmt.Errorf("PIPER_ENDPOINT is required for tts provider %q", c.TTSProvider)
		}
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider)
	}

	if c.DialogueMaxTokens <= 0 {
		return fmt.Errorf("DIALOGUE_MAX_TOKENS must be positive")
	}
	if c.AudioRetention <= 0 || c.AudioSweepInterval <= 0 {
		return fmt.Errorf("AUDIO_RETENTION and AUDIO_SWEEP_INTERVAL must be positive")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if c.AudioDir == "" {
		return fmt.Errorf("AUDIO_DIR is required")
	}

	return nil
}

// AudioRetentionDuration returns the retention window as a time.Duration
func (c *Config) AudioRetentionDuration() time.Duration {
	return time.Duration(c.AudioRetention) * time.Second
}

// UpstreamTimeoutDuration bounds a single dialogue or synthesis request
func (c *Config) UpstreamTimeoutDuration() time.Duration {
	return time.Duration(c.UpstreamTimeout) * time.Second
}

// AudioSweepIntervalDuration returns the sweep interval as a time.Duration
func (c *Config) AudioSweepIntervalDuration() time.Duration {
	return time.Duration(c.AudioSweepInterval) * time.Second
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
