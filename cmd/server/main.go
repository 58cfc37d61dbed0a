package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/voyxa/voice-webhook/internal/audiostore"
	"github.com/voyxa/voice-webhook/internal/config"
	"github.com/voyxa/voice-webhook/internal/dialogue"
	"github.com/voyxa/voice-webhook/internal/observability"
	"github.com/voyxa/voice-webhook/internal/orchestrator"
	"github.com/voyxa/voice-webhook/internal/resilience"
	"github.com/voyxa/voice-webhook/internal/telephony"
	"github.com/voyxa/voice-webhook/internal/tts"
	"github.com/voyxa/voice-webhook/internal/webhook"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("dialogue_provider", cfg.DialogueProvider).
		Str("tts_provider", cfg.TTSProvider).
		Str("audio_dir", cfg.AudioDir).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voyxa voice webhook starting")

	store, err := audiostore.New(cfg.AudioDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to prepare audio directory")
	}

	generatorBackend, err := dialogue.NewFromConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create dialogue generator")
	}
	dialogueBreaker := newBreaker(cfg, generatorBackend.Name(), logger)
	generator := dialogue.NewResilient(generatorBackend, resilience.NewGuard(dialogueBreaker, retryConfig(cfg)))

	synthesizerBackend, err := tts.NewFromConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create speech synthesizer")
	}
	ttsBreaker := newBreaker(cfg, synthesizerBackend.Name(), logger)
	synthesizer := tts.NewResilient(synthesizerBackend, resilience.NewGuard(ttsBreaker, retryConfig(cfg)))
	defer synthesizer.Close()

	decider := orchestrator.New(generator, synthesizer, store, dialogue.Options{
		MaxTokens:          cfg.DialogueMaxTokens,
		NumReturnSequences: 1,
		Truncate:           true,
	})

	// Readiness checks
	checks := map[string]observability.HealthCheckFunc{
		"audio_store": store.Check,
		"dialogue":    dialogueBreaker.Check,
		"tts":         ttsBreaker.Check,
		"twilio":      telephony.NewClient(cfg, logger).Check,
	}
	if piper, ok := synthesizerBackend.(*tts.PiperClient); ok {
		checks["piper"] = piper.Check
	}

	router := webhook.NewRouter(decider, store, webhook.Options{
		PublicBaseURL:    cfg.PublicBaseURL,
		Voice:            cfg.SayVoice,
		Language:         cfg.GatherLanguage,
		DeleteAfterServe: cfg.AudioDeleteAfterServe,
		MetricsEnabled:   cfg.MetricsEnabled,
		ReadinessChecks:  checks,
	}, logger)

	if cfg.MetricsEnabled {
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Retention sweeper
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go store.Run(sweepCtx, cfg.AudioSweepIntervalDuration(), cfg.AudioRetentionDuration())

	// Create HTTP server with timeouts. The write timeout has to cover a full
	// dialogue + synthesis turn.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(cfg.ServerWriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("webhook", fmt.Sprintf("http://localhost:%s/", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	stopSweep()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

// newBreaker creates a circuit breaker that reports to Prometheus
func newBreaker(cfg *config.Config, service string, logger zerolog.Logger) *resilience.CircuitBreaker {
	cb := resilience.NewCircuitBreaker(
		service,
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	cb.OnStateChange = func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
		logger.Warn().Str("service", name).Str("state", state.String()).Msg("Circuit breaker state changed")
	}
	cb.OnFailure = observability.IncrementCircuitBreakerFailures
	observability.UpdateCircuitBreakerState(service, int(resilience.StateClosed))
	return cb
}

func retryConfig(cfg *config.Config) *resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	rc.MaxAttempts = cfg.RetryMaxAttempts
	rc.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond
	return rc
}
