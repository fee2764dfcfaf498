package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the part of *tgbotapi.BotAPI used to post messages
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Init connects to the Telegram bot API
func Init(token string, log zerolog.Logger) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token not configured, set TELEGRAM_BOT_TOKEN")
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		if err.Error() == "Unauthorized" {
			return nil, fmt.Errorf("telegram token is invalid or expired, get a new one from @BotFather")
		}
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}

	bot.Debug = false
	log.Info().Str("username", bot.Self.UserName).Msg("telegram bot authorized")
	return bot, nil
}

// escapeHTML escapes text for Telegram's HTML parse mode, attributes included
func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	text = strings.ReplaceAll(text, `"`, "&quot;")
	return text
}
