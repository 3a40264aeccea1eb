package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"transferWatch/internal/model"
)

const (
	DefaultExplorerURL   = "https://etherscan.io/tx/"
	DefaultIncomingTitle = "New Offer Created on the Frictionless Platform"
	DefaultOutgoingTitle = "Contribution on offer wall"
)

// Message is what a destination delivers. Event is nil for status reports.
// Attempt is set by the dispatcher, starting at 1.
type Message struct {
	Text      string
	Direction model.Direction
	Event     *model.TransferEvent
	Attempt   int
}

// Formatter renders transfer events as Markdown messages.
type Formatter struct {
	GlobalLabel   string
	ExplorerURL   string
	IncomingTitle string
	OutgoingTitle string
}

// Format renders an event. Amounts are shown with four decimals.
func (f Formatter) Format(event model.TransferEvent) string {
	icon, title := "🔔", f.IncomingTitle
	if title == "" {
		title = DefaultIncomingTitle
	}
	if event.Direction == model.DirectionOutgoing {
		icon, title = "🤝", f.OutgoingTitle
		if title == "" {
			title = DefaultOutgoingTitle
		}
	}

	labels := []string{escape(walletLabel(event.Wallet))}
	if f.GlobalLabel != "" {
		labels = append(labels, escape(f.GlobalLabel))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* (%s)\n", icon, escape(title), strings.Join(labels, ", "))
	fmt.Fprintf(&b, "Token: `%s`\n", codeSafe(event.Symbol))
	fmt.Fprintf(&b, "Amount: `%s`\n", event.Amount.RoundBank(4).StringFixed(4))
	fmt.Fprintf(&b, "🔗 [View Transaction](%s%s)", f.explorerURL(), event.TxHash)
	return b.String()
}

func (f Formatter) explorerURL() string {
	if f.ExplorerURL == "" {
		return DefaultExplorerURL
	}
	return f.ExplorerURL
}

func walletLabel(w model.TrackedWallet) string {
	if w.Label != "" {
		return w.Label
	}
	return w.Address.Hex()
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// codeSafe strips backticks, which cannot appear inside a code span.
func codeSafe(s string) string {
	return strings.ReplaceAll(s, "`", "'")
}
