package occurrence

// Store defines the durable operations for prompt correlation and the
// speaker-request ledger. Implementations must serialize mutations and
// persist the full state before returning from any mutating call.
type Store interface {
	// SetPrompt registers the declaration message for an occurrence,
	// overwriting any prior registration for the same key.
	SetPrompt(key Key, ref PromptRef) error
	// Prompt returns the registered declaration message, if any.
	Prompt(key Key) (PromptRef, bool)
	// ResolvePrompt maps a (channel, timestamp) pair back to its occurrence
	// key by scanning registered prompts. O(n) over registered occurrences,
	// which stays tiny at one prompt per meeting day.
	ResolvePrompt(channel, timestamp string) (Key, bool)
	// AddSpeakerRequest marks a participant active with the given event
	// timestamp, overwriting the timestamp if they were already active.
	AddSpeakerRequest(key Key, userID, eventTS string) error
	// RemoveSpeakerRequest deactivates a participant's request. No-op if
	// the participant never requested.
	RemoveSpeakerRequest(key Key, userID string) error
	// Speakers returns the derived active roster, at most MaxSpeakers
	// entries in first-come order.
	Speakers(key Key) []string
}
