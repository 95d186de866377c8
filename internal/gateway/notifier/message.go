package notifier

import (
	"fmt"
	"strings"
	"time"
)

const maxMessageLen = 3800

// Event is a trading notification rendered for the sink.
type Event struct {
	Icon       string
	Title      string
	StrategyID string
	Symbol     string
	Lines      []string
	Timestamp  time.Time
}

// RenderText produces the plain text pushed to the sink, clipped to the
// Telegram message limit.
func (e Event) RenderText() string {
	var b strings.Builder
	header := strings.TrimSpace(e.Icon + " " + e.Title)
	if header != "" {
		b.WriteString(header + "\n")
	}
	if e.StrategyID != "" {
		b.WriteString(fmt.Sprintf("strategy: %s\n", e.StrategyID))
	}
	if e.Symbol != "" {
		b.WriteString(fmt.Sprintf("symbol: %s\n", e.Symbol))
	}
	for _, line := range e.Lines {
		if text := strings.TrimSpace(line); text != "" {
			b.WriteString("- " + text + "\n")
		}
	}
	if !e.Timestamp.IsZero() {
		b.WriteString("at: " + e.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxMessageLen {
		body = body[:maxMessageLen] + "..."
	}
	return body
}
