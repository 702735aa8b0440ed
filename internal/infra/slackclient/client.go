// internal/infra/slackclient/client.go
package slackclient

import (
	"fmt"

	"github.com/slack-go/slack"
)

// Adapter implements the chat.Client interface using the slack-go library.
type Adapter struct {
	api *slack.Client
}

func NewAdapter(api *slack.Client) *Adapter {
	return &Adapter{api: api}
}

// PostMessage posts plain text to the channel and returns the message
// timestamp Slack assigned to it.
func (a *Adapter) PostMessage(channelID, text string) (string, error) {
	_, timestamp, err := a.api.PostMessage(channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return "", fmt.Errorf("error posting message to channel %s: %w", channelID, err)
	}
	return timestamp, nil
}

// DisplayName resolves a user ID via users.info, preferring the profile
// display name, then the real name, then the raw ID.
func (a *Adapter) DisplayName(userID string) (string, error) {
	user, err := a.api.GetUserInfo(userID)
	if err != nil {
		return "", fmt.Errorf("error fetching user info for %s: %w", userID, err)
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName, nil
	}
	if user.RealName != "" {
		return user.RealName, nil
	}
	return userID, nil
}
