package orchestrator

// Dialogue holds the prompts and exit phrases. It can be replaced while the
// orchestrator runs; the new values apply from the next utterance on.
type Dialogue struct {
	// Greeting is spoken after the wake word.
	Greeting string

	// Reprompt is spoken after the user interrupted playback.
	Reprompt string

	// Farewell is spoken before the dialogue ends.
	Farewell string

	// RetryPrompt is spoken when speech was heard but nothing could be
	// transcribed. Empty re-listens silently.
	RetryPrompt string

	// GenerationFallback replaces a failed generation.
	GenerationFallback string

	// DeviceApology is spoken or logged before a device failure ends the
	// dialogue.
	DeviceApology string

	// ExitPhrases end the dialogue when found in a transcript.
	ExitPhrases []string

	// PhoneticExit also matches exit phrases that were mis-transcribed.
	PhoneticExit bool

	// SystemPrompt is passed to the responder when it supports it.
	SystemPrompt string
}

// DefaultDialogue returns the built-in prompts.
func DefaultDialogue() Dialogue {
	return Dialogue{
		Greeting:           "Yes?",
		Reprompt:           "Could you please repeat your question?",
		Farewell:           "Goodbye",
		GenerationFallback: "Sorry, I could not come up with an answer.",
		DeviceApology:      "Sorry, I lost access to the microphone. Goodbye.",
		ExitPhrases:        []string{"bye", "exit", "stop", "quit"},
		SystemPrompt:       DefaultSystemPrompt,
	}
}
