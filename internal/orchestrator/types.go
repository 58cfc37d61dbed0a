package orchestrator

// EventKind distinguishes the two provider callbacks
type EventKind int

const (
	NewCall        EventKind = iota // Call answered, nothing said yet
	GatheredSpeech                  // Provider finished a speech gather
)

func (k EventKind) String() string {
	switch k {
	case NewCall:
		return "new_call"
	case GatheredSpeech:
		return "gathered_speech"
	}
	return "unknown"
}

// CallEvent is one inbound webhook, reduced to what the turn logic needs
type CallEvent struct {
	Kind EventKind

	// Transcript is the provider's SpeechResult. Empty when the caller was
	// silent or the provider timed out.
	Transcript string
}

// Outcome tags the variant held by a Result
type Outcome int

const (
	OutcomePrompt   Outcome = iota // Ask the caller to speak
	OutcomeReply                   // Play synthesized audio, then listen again
	OutcomeFarewell                // Say goodbye and hang up
	OutcomeFailure                 // Speak an apology only
)

func (o Outcome) String() string {
	switch o {
	case OutcomePrompt:
		return "prompt"
	case OutcomeReply:
		return "reply"
	case OutcomeFarewell:
		return "farewell"
	case OutcomeFailure:
		return "failure"
	}
	return "unknown"
}

// Result is the next call-control step
type Result struct {
	Outcome Outcome

	// AudioRef names the generated file (OutcomeReply)
	AudioRef string

	// Text is the reply the audio was synthesized from (OutcomeReply)
	Text string

	// Message is the line to speak (OutcomeFailure)
	Message string
}

// Prompt asks the caller to speak
func Prompt() Result { return Result{Outcome: OutcomePrompt} }

// Reply plays audioRef and listens again
func Reply(audioRef, text string) Result {
	return Result{Outcome: OutcomeReply, AudioRef: audioRef, Text: text}
}

// Farewell ends the call
func Farewell() Result { return Result{Outcome: OutcomeFarewell} }

// Failure speaks message
func Failure(message string) Result { return Result{Outcome: OutcomeFailure, Message: message} }

// Fixed phrases spoken by the provider's own voice or used as reply text
const (
	WelcomePrompt         = "Welcome to Voyxa. Please say something."
	FarewellMessage       = "Goodbye! Have a great day."
	NoInputMessage        = "I didn't get that. Please say something."
	FallbackReply         = "I'm sorry, I couldn't understand that. Could you please say it again?"
	SynthesisErrorMessage = "An error occurred. Please try again later."

	// EndKeyword ends the call when it appears anywhere in a transcript
	EndKeyword = "goodbye"
)
