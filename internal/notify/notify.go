// Package notify delivers formatted messages about new records.
package notify

import (
	"context"
	"fmt"
	"html"
)

// Notifier delivers a pre-formatted message to a destination. Messages use
// the Telegram HTML subset (<b>, <u>, <i>); notifiers for plain-text channels
// strip the markup.
type Notifier interface {
	Notify(ctx context.Context, destination, text string) error
}

// Target is a notifier bound to one destination.
type Target struct {
	Name        string
	Notifier    Notifier
	Destination string
}

// Send delivers text to the target.
func (t Target) Send(ctx context.Context, text string) error {
	if err := t.Notifier.Notify(ctx, t.Destination, text); err != nil {
		return fmt.Errorf("notify %s: %w", t.Name, err)
	}
	return nil
}

// RecordMessage prefixes a record's formatted body with the stream name.
func RecordMessage(stream, body string) string {
	return "<u>" + html.EscapeString(stream) + "</u>\n\n" + body
}

// AlertMessage formats an operational alert about a stream.
func AlertMessage(stream, class string, err error) string {
	return fmt.Sprintf("<b>%s</b> failed (%s)\n\n<i>%s</i>",
		html.EscapeString(stream), html.EscapeString(class), html.EscapeString(err.Error()))
}
