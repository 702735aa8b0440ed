package chat

// Client defines an interface for talking to the messaging platform.
// This keeps the application logic decoupled from the Slack SDK.
type Client interface {
	// PostMessage posts text to a channel and returns the platform
	// timestamp of the new message.
	PostMessage(channelID, text string) (string, error)
	// DisplayName resolves a user ID to a human-readable name.
	DisplayName(userID string) (string, error)
}
