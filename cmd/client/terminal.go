package main

import (
	"chat-sync/domain"
	"chat-sync/domain/event"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// ConversationReader is the part of the session the terminal renders from.
type ConversationReader interface {
	Self() domain.Identity
	Conversation(partner domain.ParticipantID) []domain.Message
	IsTyping(partner domain.ParticipantID) bool
}

// Terminal prints conversation updates as they happen. It is registered as a
// permanent sink, so it sees every conversation, and prints new lines only.
type Terminal struct {
	mu      sync.Mutex
	out     io.Writer
	session ConversationReader
	printed map[domain.ConversationKey]int
	pending map[string]bool
	typing  map[domain.ParticipantID]bool
}

func NewTerminal(out io.Writer, session ConversationReader) *Terminal {
	return &Terminal{
		out:     out,
		session: session,
		printed: make(map[domain.ConversationKey]int),
		pending: make(map[string]bool),
		typing:  make(map[domain.ParticipantID]bool),
	}
}

func (t *Terminal) Consume(_ context.Context, e event.DomainEvent) error {
	updated, ok := e.(event.ConversationUpdated)
	if !ok {
		return nil
	}
	partner, ok := t.partnerOf(updated.Key)
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	switch updated.Reason {
	case event.ReasonTyping:
		t.printTyping(partner)
	case event.ReasonConfirmed:
		t.printConfirmations(partner)
	default:
		t.printNew(updated.Key, partner)
	}
	return nil
}

// Show prints the whole conversation with partner and resets what was printed.
func (t *Terminal) Show(partner domain.ParticipantID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := domain.NewConversationKey(t.session.Self().ID, partner)
	t.printed[key] = 0
	_, _ = fmt.Fprintln(t.out, color.Bold.Render(fmt.Sprintf("--- conversation with %s ---", partner)))
	t.printNew(key, partner)
}

func (t *Terminal) printNew(key domain.ConversationKey, partner domain.ParticipantID) {
	messages := t.session.Conversation(partner)
	for _, msg := range messages[min(t.printed[key], len(messages)):] {
		_, _ = fmt.Fprintln(t.out, t.format(msg))
		if !msg.Confirmed() {
			t.pending[msg.TempID] = true
		}
	}
	t.printed[key] = len(messages)
}

// printTyping prints the indicator when it turns on or off, not on every refresh.
func (t *Terminal) printTyping(partner domain.ParticipantID) {
	typing := t.session.IsTyping(partner)
	if typing == t.typing[partner] {
		return
	}
	if typing {
		t.typing[partner] = true
		_, _ = fmt.Fprintln(t.out, color.FgGray.Render(fmt.Sprintf("  %s is typing...", partner)))
		return
	}
	delete(t.typing, partner)
	_, _ = fmt.Fprintln(t.out, color.FgGray.Render(fmt.Sprintf("  %s stopped typing", partner)))
}

func (t *Terminal) printConfirmations(partner domain.ParticipantID) {
	for _, msg := range t.session.Conversation(partner) {
		if msg.Confirmed() && t.pending[msg.TempID] {
			delete(t.pending, msg.TempID)
			_, _ = fmt.Fprintln(t.out, color.FgGreen.Render(fmt.Sprintf("  ✓ delivered: %s", msg.Content)))
		}
	}
}

func (t *Terminal) format(msg domain.Message) string {
	at := msg.Timestamp.Local().Format("15:04")
	if msg.SenderID == t.session.Self().ID {
		status := "✓"
		if !msg.Confirmed() {
			status = "…"
		}
		return color.FgCyan.Render(fmt.Sprintf("[%s] me → %s: %s %s", at, msg.ReceiverID, msg.Content, status))
	}
	return color.FgYellow.Render(fmt.Sprintf("[%s] %s: %s", at, msg.SenderID, msg.Content))
}

func (t *Terminal) partnerOf(key domain.ConversationKey) (domain.ParticipantID, bool) {
	var a, b domain.ParticipantID
	if _, err := fmt.Sscanf(string(key), "%d_%d", &a, &b); err != nil {
		return 0, false
	}
	self := t.session.Self().ID
	switch self {
	case a:
		return b, true
	case b:
		return a, true
	default:
		return 0, false
	}
}

// PrintPartners renders the directory as a table.
func PrintPartners(out io.Writer, partners []domain.Partner, typing func(domain.ParticipantID) bool) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Name", "Status"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetHeaderLine(false)
	for _, p := range partners {
		status := ""
		if typing(p.ID) {
			status = "typing..."
		}
		table.Append([]string{p.ID.String(), p.DisplayName, status})
	}
	table.Render()
}
