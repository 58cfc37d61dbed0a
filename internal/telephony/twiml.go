// Package telephony turns orchestrator results into Twilio call-control
// documents and talks to the Twilio REST API for outbound calls.
package telephony

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/twilio/twilio-go/twiml"

	"github.com/voyxa/voice-webhook/internal/orchestrator"
)

const (
	// ContentType is sent with every call-control response
	ContentType = "text/xml"

	// GatherPath receives the transcript of each gather
	GatherPath = "/gather"

	// GatherTimeoutSeconds bounds how long the provider waits for speech
	GatherTimeoutSeconds = 10

	playLoop = "1"
)

// RenderOptions carries the per-request values a document needs
type RenderOptions struct {
	// BaseURL is the absolute root of this service, e.g. https://voyxa.example.com
	BaseURL string

	// Voice is the provider voice used for spoken lines (e.g. "alice")
	Voice string

	// Language is the speech recognition language for gathers (e.g. "en-US")
	Language string
}

// Render builds the TwiML document for result
func Render(result orchestrator.Result, opts RenderOptions) (string, error) {
	var verbs []twiml.Element

	switch result.Outcome {
	case orchestrator.OutcomePrompt:
		verbs = []twiml.Element{opts.gather(opts.say(orchestrator.WelcomePrompt))}

	case orchestrator.OutcomeReply:
		if result.AudioRef == "" {
			return "", fmt.Errorf("reply without audio ref")
		}
		verbs = []twiml.Element{
			&twiml.VoicePlay{Url: AudioURL(opts.BaseURL, result.AudioRef), Loop: playLoop},
			opts.gather(),
		}

	case orchestrator.OutcomeFarewell:
		verbs = []twiml.Element{opts.say(orchestrator.FarewellMessage), &twiml.VoiceHangup{}}

	case orchestrator.OutcomeFailure:
		verbs = []twiml.Element{opts.say(result.Message)}

	default:
		return "", fmt.Errorf("unknown outcome %d", result.Outcome)
	}

	return twiml.Voice(verbs)
}

// FallbackDocument is a minimal document that only speaks message. It is
// used when Render fails so the caller still hears something.
func FallbackDocument(message string) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<Response><Say>")
	_ = xml.EscapeText(&b, []byte(message))
	b.WriteString("</Say></Response>")
	return b.String()
}

// AudioURL joins base and the generated file name into the Play URL
func AudioURL(base, audioRef string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(audioRef)
}

func (o RenderOptions) say(message string) *twiml.VoiceSay {
	return &twiml.VoiceSay{Message: message, Voice: o.Voice}
}

func (o RenderOptions) gather(inner ...twiml.Element) *twiml.VoiceGather {
	return &twiml.VoiceGather{
		Input:         "speech",
		Action:        GatherPath,
		Method:        "POST",
		Timeout:       fmt.Sprint(GatherTimeoutSeconds),
		Language:      o.Language,
		InnerElements: inner,
	}
}
