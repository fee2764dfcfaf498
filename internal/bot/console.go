package bot

import (
	"context"
	"io"
	"sync"

	"dealwatch/internal/models"

	json "github.com/goccy/go-json"
)

// ConsoleNotifier writes each notification as a JSON line. It stands in for
// Telegram when delivery is disabled.
type ConsoleNotifier struct {
	mu  sync.Mutex
	enc *json.Encoder
}

type consoleEvent struct {
	Kind      string `json:"kind"`
	Source    string `json:"source"`
	SearchURL string `json:"search_url"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	OldPrice  *int64 `json:"old_price,omitempty"`
	NewPrice  *int64 `json:"new_price,omitempty"`
	Text      string `json:"text"`
}

func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{enc: json.NewEncoder(w)}
}

func (c *ConsoleNotifier) Notify(_ context.Context, notifications []models.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range notifications {
		ev := consoleEvent{
			Kind:      n.Kind.String(),
			Source:    n.Source.Name,
			SearchURL: n.Source.URL,
			Title:     n.Title,
			URL:       n.URL,
			OldPrice:  amount(n.OldPrice),
			NewPrice:  amount(n.NewPrice),
			Text:      n.Text(),
		}
		if err := c.enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}

func amount(p models.Price) *int64 {
	if !p.Valid {
		return nil
	}
	v := p.Amount
	return &v
}
