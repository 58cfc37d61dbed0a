// Package webhook exposes the HTTP surface Twilio calls: the incoming-call
// and gather webhooks, the generated-audio endpoint, and the operational
// endpoints.
package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/voyxa/voice-webhook/internal/audio"
	"github.com/voyxa/voice-webhook/internal/audiostore"
	"github.com/voyxa/voice-webhook/internal/observability"
	"github.com/voyxa/voice-webhook/internal/orchestrator"
	"github.com/voyxa/voice-webhook/internal/telephony"
)

// Greeting is returned to browsers hitting the root with GET
const Greeting = "Welcome to the Voyxa voice AI model. Please make a POST request to interact with the model."

// Decider computes the next call-control step
type Decider interface {
	Decide(ctx context.Context, event orchestrator.CallEvent) orchestrator.Result
}

// AudioFiles serves and removes generated audio
type AudioFiles interface {
	Open(name string) (*os.File, error)
	Remove(name string) error
}

// Options configures the router
type Options struct {
	// PublicBaseURL overrides the request-derived root used in Play URLs
	PublicBaseURL string

	Voice    string
	Language string

	// DeleteAfterServe removes a file once it has been fully served
	DeleteAfterServe bool

	MetricsEnabled bool

	// ReadinessChecks are reported by /ready
	ReadinessChecks map[string]observability.HealthCheckFunc
}

// Router routes webhook requests
type Router struct {
	decider Decider
	files   AudioFiles
	opts    Options
	logger  zerolog.Logger
}

// NewRouter creates a Router
func NewRouter(decider Decider, files AudioFiles, opts Options, logger zerolog.Logger) *Router {
	return &Router{
		decider: decider,
		files:   files,
		opts:    opts,
		logger:  logger.With().Str("component", "webhook").Logger(),
	}
}

// Handler returns the routed http.Handler
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", rt.handleGreeting)
	mux.HandleFunc("POST /{$}", rt.handleIncomingCall)
	mux.HandleFunc("POST "+telephony.GatherPath, rt.handleGather)
	mux.HandleFunc("GET /{filename}", rt.handleAudio)

	mux.HandleFunc("GET /health", observability.HealthCheckHandler())
	mux.HandleFunc("GET /ready", observability.ReadinessHandler(rt.opts.ReadinessChecks))
	if rt.opts.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return mux
}

func (rt *Router) handleGreeting(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, Greeting)
}

func (rt *Router) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	rt.turn(w, r, orchestrator.NewCall)
}

func (rt *Router) handleGather(w http.ResponseWriter, r *http.Request) {
	rt.turn(w, r, orchestrator.GatheredSpeech)
}

// turn decides and renders one call-control document
func (rt *Router) turn(w http.ResponseWriter, r *http.Request, kind orchestrator.EventKind) {
	if err := r.ParseForm(); err != nil {
		rt.logger.Warn().Err(err).Msg("Malformed webhook form")
	}

	event := orchestrator.CallEvent{Kind: kind}
	if kind == orchestrator.GatheredSpeech {
		event.Transcript = r.PostForm.Get("SpeechResult")
	}

	logger := observability.WithCall(rt.logger, r.PostForm.Get("CallSid"))
	logger.Info().Str("event", event.Kind.String()).Msg("Webhook received")

	// The turn runs to completion even if Twilio drops the connection
	ctx := logger.WithContext(context.WithoutCancel(r.Context()))
	result := rt.decider.Decide(ctx, event)

	doc, err := telephony.Render(result, telephony.RenderOptions{
		BaseURL:  rt.baseURL(r),
		Voice:    rt.opts.Voice,
		Language: rt.opts.Language,
	})
	if err != nil {
		logger.Error().Err(err).Str("outcome", result.Outcome.String()).Msg("Failed to render TwiML")
		observability.RecordError("render", "webhook")
		doc = telephony.FallbackDocument(orchestrator.SynthesisErrorMessage)
	}

	w.Header().Set("Content-Type", telephony.ContentType)
	io.WriteString(w, doc)
}

func (rt *Router) handleAudio(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")

	f, err := rt.files.Open(name)
	if err != nil {
		switch {
		case errors.Is(err, audiostore.ErrInvalidName):
			rt.logger.Warn().Str("file", name).Str("remote", r.RemoteAddr).Msg("Rejected audio file request")
			observability.RecordAudioServed("rejected")
		case errors.Is(err, audiostore.ErrNotFound):
			observability.RecordAudioServed("not_found")
		default:
			rt.logger.Error().Err(err).Str("file", name).Msg("Failed to open audio file")
			observability.RecordAudioServed("error")
		}
		http.NotFound(w, r)
		return
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		observability.RecordAudioServed("error")
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", audio.ContentTypeWAV)
	http.ServeContent(w, r, name, info.ModTime(), f)
	f.Close()
	observability.RecordAudioServed("ok")

	// Partial and HEAD requests leave the file for the full fetch
	if rt.opts.DeleteAfterServe && r.Method == http.MethodGet && r.Header.Get("Range") == "" {
		if err := rt.files.Remove(name); err != nil {
			rt.logger.Warn().Err(err).Str("file", name).Msg("Failed to remove served audio file")
		}
	}
}

// baseURL is the absolute root Twilio should fetch audio from
func (rt *Router) baseURL(r *http.Request) string {
	if rt.opts.PublicBaseURL != "" {
		return strings.TrimRight(rt.opts.PublicBaseURL, "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host
}
