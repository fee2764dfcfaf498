package bot

import (
	"context"
	"fmt"
	"strings"

	"dealwatch/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// maxListedDeals keeps /deals under Telegram's message size limit
const maxListedDeals = 25

// DealLister reads the tracked deals
type DealLister interface {
	Load() ([]models.KnownDeal, error)
}

// CheckTrigger schedules a check cycle outside the normal interval
type CheckTrigger interface {
	Trigger() bool
}

// Handler answers bot commands. Only chatID may use commands other than /help.
type Handler struct {
	sender  Sender
	chatID  int64
	deals   DealLister
	checker CheckTrigger
	log     zerolog.Logger
}

func NewHandler(sender Sender, chatID int64, deals DealLister, checker CheckTrigger, log zerolog.Logger) *Handler {
	return &Handler{
		sender:  sender,
		chatID:  chatID,
		deals:   deals,
		checker: checker,
		log:     log,
	}
}

// SetupCommands polls for updates and dispatches commands until ctx is done.
func SetupCommands(ctx context.Context, api *tgbotapi.BotAPI, h *Handler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				h.Handle(update.Message)
			}
		}
	}
}

// Handle runs the command in message, if any
func (h *Handler) Handle(message *tgbotapi.Message) {
	text := message.Text
	if text == "" || message.Chat == nil {
		return
	}

	// command without @botname
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return
	}
	command := strings.ToLower(parts[0])
	if idx := strings.Index(command, "@"); idx > 0 {
		command = command[:idx]
	}
	if !strings.HasPrefix(command, "/") {
		return
	}

	chatID := message.Chat.ID
	isPublicCommand := command == "/start" || command == "/help"
	if !isPublicCommand && chatID != h.chatID {
		h.log.Warn().Int64("chat_id", chatID).Str("command", command).Msg("unauthorized command")
		h.reply(chatID, "You are not authorized to use this bot.", "")
		return
	}

	switch command {
	case "/start", "/help":
		h.handleHelp(chatID)
	case "/deals":
		h.handleDeals(chatID)
	case "/check":
		h.handleCheck(chatID)
	default:
		h.reply(chatID, "Unknown command. Use /help to see the available commands.", "")
	}
}

func (h *Handler) handleHelp(chatID int64) {
	helpText := `🤖 <b>Craigslist deal watcher</b>

New listings and price drops on the configured searches are posted here automatically.

<b>/deals</b> - list tracked deals
<b>/check</b> - check all searches now
<b>/help</b> - show this message`

	h.reply(chatID, helpText, tgbotapi.ModeHTML)
}

func (h *Handler) handleDeals(chatID int64) {
	deals, err := h.deals.Load()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load deals")
		h.reply(chatID, fmt.Sprintf("❌ Failed to load deals: %v", err), "")
		return
	}

	if len(deals) == 0 {
		h.reply(chatID, "📋 No deals tracked yet.", "")
		return
	}

	h.reply(chatID, formatDeals(deals), tgbotapi.ModeHTML)
}

func (h *Handler) handleCheck(chatID int64) {
	if h.checker.Trigger() {
		h.reply(chatID, "⏳ Checking all searches, new deals will be posted here.", "")
		return
	}
	h.reply(chatID, "⏳ A check is already scheduled.", "")
}

// formatDeals lists the most recently added deals, newest first
func formatDeals(deals []models.KnownDeal) string {
	var response strings.Builder
	fmt.Fprintf(&response, "📋 <b>Tracked deals: %d</b>\n\n", len(deals))

	shown := 0
	for i := len(deals) - 1; i >= 0 && shown < maxListedDeals; i-- {
		d := deals[i]
		shown++

		fmt.Fprintf(&response, "📦 <a href=\"%s\">%s</a>\n", escapeHTML(d.URL), escapeHTML(d.Title))
		switch {
		case !d.CurrentPrice.Valid:
			response.WriteString("💰 no price\n\n")
		case d.CurrentPrice.Less(d.OriginalPrice):
			fmt.Fprintf(&response, "💰 <b>%s</b> (was %s)\n\n", d.CurrentPrice, d.OriginalPrice)
		default:
			fmt.Fprintf(&response, "💰 %s\n\n", d.CurrentPrice)
		}
	}

	if rest := len(deals) - shown; rest > 0 {
		fmt.Fprintf(&response, "… and %d older", rest)
	}
	return strings.TrimRight(response.String(), "\n")
}

func (h *Handler) reply(chatID int64, text, parseMode string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode
	if _, err := h.sender.Send(msg); err != nil {
		h.log.Error().Err(err).Msg("failed to send reply")
		if parseMode == "" {
			return
		}
		// retry without formatting
		msg.ParseMode = ""
		if _, err := h.sender.Send(msg); err != nil {
			h.log.Error().Err(err).Msg("failed to send plain reply")
		}
	}
}
