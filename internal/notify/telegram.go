// Package notify is the operational-alerting collaborator: forced
// cancellations and fatal invariant violations get pushed out over
// Telegram, grounded on the teacher's own bot (bot/telegram.go) minus
// everything that bot does beyond sending a message (no command loop,
// no strategy wiring — this is a write-only sink).
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// TelegramNotifier pushes account.Notifier messages to a single chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	log.Info().Str("bot", api.Self.UserName).Msg("📱 telegram notifier connected")
	return &TelegramNotifier{api: api, chatID: chatID}, nil
}

// Notify implements account.Notifier. Sends are best-effort: a failed
// alert must never block or panic the account actor that raised it.
func (n *TelegramNotifier) Notify(level string, message string) {
	icon := "ℹ️"
	switch level {
	case "forced_cancel":
		icon = "⚠️"
	case "fatal":
		icon = "🚨"
	}
	n.sendMarkdown(fmt.Sprintf("%s *%s*\n%s", icon, level, message))
}

func (n *TelegramNotifier) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := n.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("telegram notifier: send failed")
	}
}
