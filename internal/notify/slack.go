package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"
)

// SlackConfig holds Slack notifier configuration.
type SlackConfig struct {
	BotToken string // xoxb-... Bot User OAuth Token
	Channel  string // channel ID to post alerts to
}

// SlackNotifier posts alerts to a Slack channel via the Web API.
type SlackNotifier struct {
	api     *slack.Client
	channel string
	logger  *slog.Logger
}

// NewSlack creates a Slack notifier and verifies the token.
func NewSlack(cfg SlackConfig, logger *slog.Logger) (*SlackNotifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	api := slack.New(cfg.BotToken)

	authResp, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}
	logger.Info("slack notifier authorized", "user", authResp.User, "team", authResp.Team)

	return &SlackNotifier{api: api, channel: cfg.Channel, logger: logger}, nil
}

func (s *SlackNotifier) Name() string { return "slack" }

// Send posts the alert as a header/section/context block message.
func (s *SlackNotifier) Send(ctx context.Context, a Alert) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionBlocks(alertBlocks(a, time.Now().UTC())...),
		slack.MsgOptionText(a.Severity.Emoji()+" "+a.Title, false),
	)
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// alertBlocks renders an alert in the fixed three-block layout:
// emoji-prefixed header, mrkdwn body, and a context footer with the
// alert source and timestamp.
func alertBlocks(a Alert, now time.Time) []slack.Block {
	header := slack.NewHeaderBlock(
		slack.NewTextBlockObject(slack.PlainTextType, a.Severity.Emoji()+" "+a.Title, true, false),
	)
	body := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, a.Message, false, false),
		nil, nil,
	)
	footer := slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("Duplicate Canceller | %s", now.Format("2006-01-02 15:04:05 UTC")),
			false, false),
	)
	return []slack.Block{header, body, footer}
}
