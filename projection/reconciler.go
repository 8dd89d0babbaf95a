// Package projection builds local conversation views from observed events.
// Handles ordering, deduplication, and typing state.
// Does not perform I/O or interact with UI directly.
package projection

import (
	"chat-sync/domain"
	"chat-sync/domain/event"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Outcome tells what a merge did to the conversation.
type Outcome int

const (
	OutcomeDropped Outcome = iota
	OutcomeAppended
	OutcomeConfirmed
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAppended:
		return "appended"
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "dropped"
	}
}

// Changed reports whether the conversation view differs after the merge.
func (o Outcome) Changed() bool {
	return o == OutcomeAppended || o == OutcomeConfirmed
}

// Reconciler merges locally sent, echoed and partner messages into one
// ordered view per conversation, without duplicates.
//
// Order is call order: entries are appended and never re-sorted by timestamp.
// An optimistic entry is superseded in place when its echo arrives.
type Reconciler struct {
	mu            sync.RWMutex
	log           *slog.Logger
	self          domain.Identity
	now           func() time.Time
	newTempID     func(at time.Time) string
	conversations map[domain.ConversationKey][]domain.Message
}

type ReconcilerOption func(*Reconciler)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// WithTempIDGenerator replaces the correlation token generator.
func WithTempIDGenerator(gen func(at time.Time) string) ReconcilerOption {
	return func(r *Reconciler) { r.newTempID = gen }
}

func NewReconciler(log *slog.Logger, self domain.Identity, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		log:           log,
		self:          self,
		now:           time.Now,
		newTempID:     NewTempID,
		conversations: make(map[domain.ConversationKey][]domain.Message),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewTempID builds a token unique per client session: send time plus a random suffix.
func NewTempID(at time.Time) string {
	return fmt.Sprintf("%d-%s", at.UnixNano(), uuid.NewString()[:8])
}

// Self returns the local participant the reconciler was built for.
func (r *Reconciler) Self() domain.Identity {
	return r.self
}

// RecordOutgoing appends an optimistic message and returns it so the caller can
// render it and hand its TempID to the transport. Content is validated by the caller.
// Every call appends: one call per logical send.
func (r *Reconciler) RecordOutgoing(sender, receiver domain.ParticipantID, content string) domain.Message {
	at := r.now().UTC()
	msg := domain.Message{
		TempID:     r.newTempID(at),
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		Timestamp:  at,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := msg.Key()
	r.conversations[key] = append(r.conversations[key], msg)
	return msg
}

// RecordIncoming normalizes an inbound payload and merges it, returning the
// conversation it landed in. Malformed payloads are logged and dropped with an empty key.
func (r *Reconciler) RecordIncoming(raw event.RawPayload) (Outcome, domain.ConversationKey) {
	evt, err := event.NormalizeMessage(raw, r.now().UTC())
	if err != nil {
		r.log.Warn("Dropping inbound message", "error", err)
		return OutcomeDropped, ""
	}
	return r.Apply(evt), evt.ConversationKey()
}

// Apply merges a normalized message with this precedence:
//  1. same non-empty id already present: ignored (replay)
//  2. same non-empty tempId already present: echo of a local send, confirmed in place
//  3. otherwise appended
func (r *Reconciler) Apply(evt event.MessageReceived) Outcome {
	key := evt.ConversationKey()

	r.mu.Lock()
	defer r.mu.Unlock()

	messages := r.conversations[key]
	if evt.ID != "" {
		if _, found := lo.Find(messages, func(m domain.Message) bool { return m.ID == evt.ID }); found {
			r.log.Debug("Duplicate message ignored", "key", key, "id", evt.ID)
			return OutcomeDuplicate
		}
	}

	if evt.TempID != "" {
		if _, idx, found := lo.FindIndexOf(messages, func(m domain.Message) bool { return m.TempID == evt.TempID }); found {
			existing := &messages[idx]
			if evt.ID != "" {
				existing.ID = evt.ID
			}
			existing.Timestamp = evt.At
			existing.Read = existing.Read || evt.Read
			r.log.Debug("Optimistic message confirmed", "key", key, "tempId", evt.TempID, "id", existing.ID)
			return OutcomeConfirmed
		}
	}

	r.conversations[key] = append(messages, evt.ToMessage())
	return OutcomeAppended
}

// GetConversation returns a copy of the ordered view for the pair.
// An unknown pair yields an empty slice.
func (r *Reconciler) GetConversation(a, b domain.ParticipantID) []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	messages := r.conversations[domain.NewConversationKey(a, b)]
	copied := make([]domain.Message, len(messages))
	copy(copied, messages)
	return copied
}

// MergeHistory merges an authoritative history page for the pair.
// Entries that belong to another conversation are skipped.
// It returns how many entries were appended.
func (r *Reconciler) MergeHistory(a, b domain.ParticipantID, history []event.MessageReceived) int {
	key := domain.NewConversationKey(a, b)
	appended := 0
	for _, evt := range history {
		if evt.ConversationKey() != key {
			r.log.Warn("History entry outside conversation", "key", key, "entryKey", evt.ConversationKey())
			continue
		}
		if r.Apply(evt) == OutcomeAppended {
			appended++
		}
	}
	return appended
}

// MarkRead flags as read every message of the pair received by userID.
// Read never goes back to false. It returns how many messages changed.
func (r *Reconciler) MarkRead(userID, partnerID domain.ParticipantID) int {
	key := domain.NewConversationKey(userID, partnerID)

	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	messages := r.conversations[key]
	for i := range messages {
		if messages[i].ReceiverID == userID && !messages[i].Read {
			messages[i].Read = true
			changed++
		}
	}
	return changed
}

// Conversations lists the keys having at least one message, sorted.
func (r *Reconciler) Conversations() []domain.ConversationKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := lo.Keys(r.conversations)
	slices.Sort(keys)
	return keys
}
