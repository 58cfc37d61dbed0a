// Package orchestrator decides each call turn: given one provider callback it
// returns the next call-control step, calling the dialogue and speech models
// when a reply is needed. It keeps no state between turns; the telephony
// provider owns the call.
package orchestrator

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/voyxa/voice-webhook/internal/audio"
	"github.com/voyxa/voice-webhook/internal/dialogue"
	"github.com/voyxa/voice-webhook/internal/observability"
	"github.com/voyxa/voice-webhook/internal/tts"
)

const (
	// peakAmplitude leaves a little headroom below int16 full scale
	peakAmplitude = 32000

	// minSpeechRMS rejects synthesized audio that is effectively silent
	minSpeechRMS = 1.0
)

// AudioSaver persists synthesized samples and returns a servable file name
type AudioSaver interface {
	Save(samples []int16, sampleRate int) (string, error)
}

// Orchestrator runs call turns. Dependencies are built once at startup and
// shared read-only by concurrent requests.
type Orchestrator struct {
	generator   dialogue.Generator
	synthesizer tts.Synthesizer
	store       AudioSaver
	opts        dialogue.Options
}

// New creates an Orchestrator
func New(generator dialogue.Generator, synthesizer tts.Synthesizer, store AudioSaver, opts dialogue.Options) *Orchestrator {
	return &Orchestrator{
		generator:   generator,
		synthesizer: synthesizer,
		store:       store,
		opts:        opts,
	}
}

// Decide computes the next step for event. It never returns an error: every
// model failure is turned into something the caller hears.
func (o *Orchestrator) Decide(ctx context.Context, event CallEvent) Result {
	metrics := observability.NewTurnMetrics()
	result := o.decide(ctx, event, metrics)
	metrics.RecordTurnEnd(result.Outcome.String())
	return result
}

func (o *Orchestrator) decide(ctx context.Context, event CallEvent, metrics *observability.Metrics) Result {
	logger := zerolog.Ctx(ctx)

	if event.Kind == NewCall {
		return Prompt()
	}

	transcript := event.Transcript
	if strings.TrimSpace(transcript) == "" {
		logger.Warn().Msg("SpeechResult is missing")
		return Failure(NoInputMessage)
	}

	logger.Debug().Str("transcript", transcript).Msg("Received speech")

	if ContainsEndKeyword(transcript) {
		logger.Info().Msg("End keyword detected, ending call")
		return Farewell()
	}

	replyText := o.generate(ctx, transcript, metrics)

	audioRef, err := o.speak(ctx, replyText, metrics)
	if err != nil {
		logger.Error().Err(err).Msg("Error generating TTS response")
		metrics.RecordError("synthesis", "orchestrator")
		return Failure(SynthesisErrorMessage)
	}

	logger.Info().Str("audio_ref", audioRef).Str("reply", replyText).Msg("Reply synthesized")
	return Reply(audioRef, replyText)
}

// ContainsEndKeyword reports whether transcript asks to end the call
func ContainsEndKeyword(transcript string) bool {
	return strings.Contains(strings.ToLower(transcript), EndKeyword)
}

// generate returns the model's reply, or FallbackReply if the model fails
func (o *Orchestrator) generate(ctx context.Context, transcript string, metrics *observability.Metrics) string {
	logger := zerolog.Ctx(ctx)

	metrics.RecordDialogueStart()
	text, err := o.generator.Generate(ctx, transcript, o.opts)
	if err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			err = dialogue.ErrEmptyGeneration
		}
	}
	metrics.RecordDialogueEnd(err == nil)

	if err != nil {
		logger.Warn().Err(err).Str("generator", o.generator.Name()).Msg("Dialogue generation failed, using fallback reply")
		metrics.RecordError("generation", "orchestrator")
		return FallbackReply
	}

	logger.Debug().Str("reply", text).Msg("Generated response")
	return text
}

// speak synthesizes text and stores it at the fixed sample rate
func (o *Orchestrator) speak(ctx context.Context, text string, metrics *observability.Metrics) (string, error) {
	metrics.RecordTTSStart()
	speech, err := o.synthesizer.Synthesize(ctx, text)
	if err == nil && (speech == nil || audio.CalculateRMS(speech.Samples) < minSpeechRMS) {
		err = tts.ErrEmptyAudio
	}
	metrics.RecordTTSEnd(err == nil)
	if err != nil {
		return "", err
	}

	samples := audio.Resample(speech.Samples, speech.SampleRate, audio.SampleRate)
	samples = audio.NormalizeAudio(samples, peakAmplitude)
	if len(samples) == 0 {
		return "", errors.New("resampled audio is empty")
	}

	return o.store.Save(samples, audio.SampleRate)
}
