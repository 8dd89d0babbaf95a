package projection

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTypingTimeout  = 2 * time.Second
	DefaultTypingDebounce = 800 * time.Millisecond
)

// TypingTracker turns inbound typing signals into a self-clearing flag per partner.
// A flag holds for the window after the last signal of that partner.
type TypingTracker struct {
	mu        sync.Mutex
	local     domain.ParticipantID
	window    time.Duration
	now       func() time.Time
	deadlines map[domain.ParticipantID]time.Time
}

func NewTypingTracker(local domain.ParticipantID, window time.Duration, now func() time.Time) *TypingTracker {
	if window <= 0 {
		window = DefaultTypingTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &TypingTracker{
		local:     local,
		window:    window,
		now:       now,
		deadlines: make(map[domain.ParticipantID]time.Time),
	}
}

// Observe records a typing signal addressed to the local participant.
// Signals for anyone else are ignored.
func (t *TypingTracker) Observe(evt event.TypingReceived) bool {
	if evt.ReceiverID != t.local {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deadlines[evt.SenderID] = t.now().Add(t.window)
	return true
}

func (t *TypingTracker) IsTyping(partner domain.ParticipantID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	deadline, ok := t.deadlines[partner]
	return ok && t.now().Before(deadline)
}

// Typing lists the partners currently typing, sorted.
func (t *TypingTracker) Typing() []domain.ParticipantID {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	var partners []domain.ParticipantID
	for partner, deadline := range t.deadlines {
		if now.Before(deadline) {
			partners = append(partners, partner)
		}
	}
	slices.Sort(partners)
	return partners
}

// Expire forgets the partners whose window has passed and returns them, sorted.
// Each expired flag is returned exactly once, so the caller can announce it.
func (t *TypingTracker) Expire() []domain.ParticipantID {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	var expired []domain.ParticipantID
	for partner, deadline := range t.deadlines {
		if !now.Before(deadline) {
			delete(t.deadlines, partner)
			expired = append(expired, partner)
		}
	}
	slices.Sort(expired)
	return expired
}

// TypingDebouncer emits at most one outbound typing signal per partner per window.
// Transport failures are logged, never returned.
type TypingDebouncer struct {
	mu        sync.Mutex
	log       *slog.Logger
	publisher contract.Publisher
	local     domain.ParticipantID
	window    time.Duration
	now       func() time.Time
	lastSent  map[domain.ParticipantID]time.Time
}

func NewTypingDebouncer(log *slog.Logger, publisher contract.Publisher, local domain.ParticipantID,
	window time.Duration, now func() time.Time) *TypingDebouncer {
	if window <= 0 {
		window = DefaultTypingDebounce
	}
	if now == nil {
		now = time.Now
	}
	return &TypingDebouncer{
		log:       log,
		publisher: publisher,
		local:     local,
		window:    window,
		now:       now,
		lastSent:  make(map[domain.ParticipantID]time.Time),
	}
}

// OnInput is called on every change of the compose box for partner.
// It reports whether a typing signal went out.
func (d *TypingDebouncer) OnInput(ctx context.Context, partner domain.ParticipantID, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	d.mu.Lock()
	now := d.now()
	if last, ok := d.lastSent[partner]; ok && now.Sub(last) < d.window {
		d.mu.Unlock()
		return false
	}
	d.lastSent[partner] = now
	d.mu.Unlock()

	err := d.publisher.Publish(ctx, event.DestinationTyping, event.OutgoingTyping{
		SenderID:   d.local,
		ReceiverID: partner,
	})
	if err != nil {
		d.log.Debug("Typing signal not sent", "partner", partner, "error", err)
		d.mu.Lock()
		delete(d.lastSent, partner)
		d.mu.Unlock()
		return false
	}
	return true
}
