// Package notify posts deployment outcomes to a Slack webhook.
// Notification is best-effort: failures are the caller's to log, never
// to fail a deployment over.
package notify

import (
	"fmt"

	"github.com/slack-go/slack"
)

// Notifier reports pipeline outcomes.
type Notifier interface {
	Success(image string) error
	Failure(stage string, err error) error
}

// SlackNotifier posts to an incoming webhook URL.
type SlackNotifier struct {
	WebhookURL string
}

func (n *SlackNotifier) Success(image string) error {
	return n.post(fmt.Sprintf(":rocket: Deployed `%s`", image))
}

func (n *SlackNotifier) Failure(stage string, err error) error {
	return n.post(fmt.Sprintf(":x: Deployment failed at stage %q: %v", stage, err))
}

func (n *SlackNotifier) post(text string) error {
	return slack.PostWebhook(n.WebhookURL, &slack.WebhookMessage{Text: text})
}
