package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramConfig holds Telegram notifier configuration.
type TelegramConfig struct {
	Token  string // Bot token from @BotFather
	ChatID int64  // chat to post alerts to
}

// TelegramNotifier posts alerts to a Telegram chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(cfg TelegramConfig, logger *slog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("telegram notifier authorized", "username", bot.Self.UserName)

	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID, logger: logger}, nil
}

func (t *TelegramNotifier) Name() string { return "telegram" }

// Send posts the alert as a plain-text message.
func (t *TelegramNotifier) Send(_ context.Context, a Alert) error {
	text := fmt.Sprintf("%s %s\n\n%s", a.Severity.Emoji(), a.Title, a.Message)
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}
