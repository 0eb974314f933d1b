// Package notify delivers a finished weekly brief. Delivery is best effort:
// the pipeline logs failures and never rolls back a persisted brief.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message is what every notifier receives.
type Message struct {
	WeekStart time.Time
	WeekEnd   time.Time
	Markdown  string
	Watchlist []string
}

// Notifier delivers a Message.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, msg Message) error
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, n := range m {
		names[i] = n.Name()
	}
	return strings.Join(names, ",")
}

// Notify calls every notifier even when an earlier one fails.
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

const dateLayout = "2006-01-02"

// FormatText renders the message as the Slack-flavoured text body.
func FormatText(msg Message) string {
	watchlist := "No items on watchlist"
	if len(msg.Watchlist) > 0 {
		lines := make([]string, len(msg.Watchlist))
		for i, item := range msg.Watchlist {
			lines[i] = "• " + item
		}
		watchlist = strings.Join(lines, "\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Weekly Strategic Brief*\n_%s to %s_\n\n",
		msg.WeekStart.Format(dateLayout), msg.WeekEnd.Format(dateLayout))
	b.WriteString(msg.Markdown)
	b.WriteString("\n\n🔍 *Watchlist*\n")
	b.WriteString(watchlist)
	b.WriteString("\n\n---\n_Generated automatically by the Weekly Strategic Insight Engine_\n")
	return b.String()
}
