package bot

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"dealwatch/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records messages and fails the first failN sends.
type fakeSender struct {
	mu    sync.Mutex
	sent  []tgbotapi.MessageConfig
	calls int
	failN int
	fail  func(tgbotapi.MessageConfig) bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	msg := c.(tgbotapi.MessageConfig)
	if f.calls <= f.failN || (f.fail != nil && f.fail(msg)) {
		return tgbotapi.Message{}, errors.New("Bad Request")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{MessageID: f.calls}, nil
}

var search = models.Source{Name: "couches", URL: "https://sfbay.craigslist.org/search/fua?query=couch&max_price=200"}

func newDeal() models.Notification {
	return models.Notification{Kind: models.NewDeal, Source: search, Title: "Couch <leather>", URL: "https://sfbay.craigslist.org/a.html", NewPrice: models.NewPrice(100)}
}

func priceDrop() models.Notification {
	return models.Notification{Kind: models.PriceDrop, Source: search, Title: "Couch", URL: "https://sfbay.craigslist.org/a.html", OldPrice: models.NewPrice(100), NewPrice: models.NewPrice(80)}
}

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"plain", "plain"},
		{"a & b", "a &amp; b"},
		{"<b>x</b>", "&lt;b&gt;x&lt;/b&gt;"},
		{`say "hi"`, "say &quot;hi&quot;"},
		{"?a=1&b=2", "?a=1&amp;b=2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, escapeHTML(tt.input))
	}
}

func TestFormatNotification(t *testing.T) {
	msg := formatNotification(newDeal())
	assert.Contains(t, msg, "Couch &lt;leather&gt; - 100")
	assert.Contains(t, msg, `<a href="https://sfbay.craigslist.org/a.html">deal</a>`)
	assert.Contains(t, msg, "query=couch&amp;max_price=200")

	msg = formatNotification(priceDrop())
	assert.Contains(t, msg, "Price drop")
	assert.Contains(t, msg, "100 → <b>80</b>")
}

func TestTelegramNotifier_SendsInOrder(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, 42, 3, time.Millisecond, 0, zerolog.Nop())

	require.NoError(t, n.Notify(context.Background(), []models.Notification{newDeal(), priceDrop()}))
	require.Len(t, sender.sent, 2)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, sender.sent[0].ParseMode)
	assert.Contains(t, sender.sent[1].Text, "Price drop")
}

func TestTelegramNotifier_Retries(t *testing.T) {
	sender := &fakeSender{failN: 2}
	n := NewTelegramNotifier(sender, 42, 3, time.Millisecond, 0, zerolog.Nop())

	require.NoError(t, n.Notify(context.Background(), []models.Notification{newDeal()}))
	assert.Equal(t, 3, sender.calls)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, tgbotapi.ModeHTML, sender.sent[0].ParseMode)
}

func TestTelegramNotifier_FallsBackToPlainText(t *testing.T) {
	sender := &fakeSender{fail: func(m tgbotapi.MessageConfig) bool { return m.ParseMode == tgbotapi.ModeHTML }}
	n := NewTelegramNotifier(sender, 42, 2, time.Millisecond, 0, zerolog.Nop())

	require.NoError(t, n.Notify(context.Background(), []models.Notification{newDeal()}))
	require.Len(t, sender.sent, 1)
	assert.Empty(t, sender.sent[0].ParseMode)
	assert.Equal(t, newDeal().Text(), sender.sent[0].Text)
}

func TestTelegramNotifier_ContinuesAfterFailure(t *testing.T) {
	sender := &fakeSender{fail: func(m tgbotapi.MessageConfig) bool { return strings.Contains(m.Text, "leather") }}
	n := NewTelegramNotifier(sender, 42, 1, time.Millisecond, 0, zerolog.Nop())

	err := n.Notify(context.Background(), []models.Notification{newDeal(), priceDrop()})
	assert.Error(t, err)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "Price drop")
}

func TestTelegramNotifier_SpacesMessages(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, 42, 1, time.Millisecond, 50*time.Millisecond, zerolog.Nop())

	started := time.Now()
	require.NoError(t, n.Notify(context.Background(), []models.Notification{newDeal(), priceDrop(), newDeal()}))
	assert.Len(t, sender.sent, 3)
	assert.GreaterOrEqual(t, time.Since(started), 95*time.Millisecond)
}

func TestConsoleNotifier(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewConsoleNotifier(&buf).Notify(context.Background(), []models.Notification{newDeal(), priceDrop()}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var ev consoleEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, "new_deal", ev.Kind)
	assert.Nil(t, ev.OldPrice)
	require.NotNil(t, ev.NewPrice)
	assert.Equal(t, int64(100), *ev.NewPrice)

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &ev))
	assert.Equal(t, "price_drop", ev.Kind)
	assert.Equal(t, int64(100), *ev.OldPrice)
	assert.Equal(t, int64(80), *ev.NewPrice)
}
