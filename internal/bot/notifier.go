package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealwatch/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TelegramNotifier posts one message per notification to a single chat
type TelegramNotifier struct {
	sender     Sender
	chatID     int64
	maxRetries int
	retryDelay time.Duration
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// NewTelegramNotifier creates a notifier for chatID. Messages are sent at
// most once per sendInterval; zero disables the limit.
func NewTelegramNotifier(sender Sender, chatID int64, maxRetries int, retryDelay, sendInterval time.Duration, log zerolog.Logger) *TelegramNotifier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &TelegramNotifier{
		sender:     sender,
		chatID:     chatID,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		limiter:    rate.NewLimiter(every(sendInterval), 1),
		log:        log,
	}
}

// Notify sends the notifications in order. A message that keeps failing is
// skipped and reported in the returned error; the rest are still sent.
func (n *TelegramNotifier) Notify(ctx context.Context, notifications []models.Notification) error {
	var errs []error
	for _, note := range notifications {
		if err := n.send(ctx, note); err != nil {
			n.log.Error().Err(err).Str("url", note.URL).Msg("failed to send notification")
			errs = append(errs, fmt.Errorf("%s %s: %w", note.Kind, note.URL, err))
			continue
		}
		n.log.Debug().Str("url", note.URL).Str("kind", note.Kind.String()).Msg("notification sent")
	}
	return errors.Join(errs...)
}

// send tries the HTML message with linear backoff, then falls back to plain text once.
func (n *TelegramNotifier) send(ctx context.Context, note models.Notification) error {
	msg := tgbotapi.NewMessage(n.chatID, formatNotification(note))
	msg.ParseMode = tgbotapi.ModeHTML

	var lastErr error
	for i := 0; i < n.maxRetries; i++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := n.sender.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if i == n.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(n.retryDelay * time.Duration(i+1)):
		}
	}

	n.log.Warn().Err(lastErr).Msg("html message failed, sending plain text")
	plain := tgbotapi.NewMessage(n.chatID, note.Text())
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := n.sender.Send(plain); err != nil {
		return fmt.Errorf("failed after %d retries: %w", n.maxRetries, lastErr)
	}
	return nil
}

func every(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

func formatNotification(note models.Notification) string {
	var b strings.Builder
	switch note.Kind {
	case models.PriceDrop:
		fmt.Fprintf(&b, "📉 <b>Price drop</b> for %s (%s)\n", escapeHTML(note.Title), escapeHTML(note.Source.Name))
		fmt.Fprintf(&b, "%s → <b>%s</b>\n", note.OldPrice, note.NewPrice)
	default:
		fmt.Fprintf(&b, "🆕 <b>New craigslist deal</b> for %s\n", escapeHTML(note.Source.Name))
		b.WriteString(escapeHTML(note.Title))
		if note.NewPrice.Valid {
			fmt.Fprintf(&b, " - %s", note.NewPrice)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, `<a href="%s">deal</a> | <a href="%s">all deals</a>`, escapeHTML(note.URL), escapeHTML(note.Source.URL))
	return b.String()
}
