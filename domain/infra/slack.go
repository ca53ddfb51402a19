package infra

import "github.com/slack-go/slack"

//go:generate mockgen -source=slack.go -destination=../../handler/mock_slackapi.go -package=handler
type SlackAPI interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessage(channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	PostEphemeral(channelID, userID string, options ...slack.MsgOption) (string, error)
	OpenView(triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
	AuthTest() (*slack.AuthTestResponse, error)
	GetUserInfo(userID string) (*slack.User, error)
}
