package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"secretcontest/internal/models"
)

type telegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier builds the bot client without the getMe round trip that
// tgbotapi.NewBotAPI performs, so startup does not depend on Telegram being
// reachable. endpoint may be empty for the public Bot API.
func NewTelegramNotifier(botToken string, chatID int64, endpoint string) Notifier {
	bot := &tgbotapi.BotAPI{
		Token:  botToken,
		Client: &http.Client{Timeout: 10 * time.Second},
		Buffer: 100,
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot.SetAPIEndpoint(endpoint)
	return &telegramNotifier{bot: bot, chatID: chatID}
}

func (t *telegramNotifier) NotifyWinner(ctx context.Context, contact models.WinnerContact) error {
	msg := tgbotapi.NewMessage(t.chatID, winnerSummary(contact))
	msg.DisableWebPagePreview = true
	err := runWithContext(ctx, func() error {
		_, err := t.bot.Send(msg)
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
