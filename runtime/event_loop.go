package runtime

import (
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/projection"
	"context"
	"log/slog"
	"time"
)

// EventLoop is the single consumer of the transport's inbound channels.
// Every inbound message and typing signal is applied here, one at a time,
// so the reconciler only ever sees run-to-completion updates from the network side.
type EventLoop struct {
	log        *slog.Logger
	reconciler *projection.Reconciler
	typing     *projection.TypingTracker
	messages   <-chan event.RawPayload
	signals    <-chan event.RawPayload
	updates    chan<- event.DomainEvent
	sweep      time.Duration
	now        func() time.Time
}

// DefaultTypingSweep is how often expired typing flags are looked for.
const DefaultTypingSweep = 250 * time.Millisecond

func NewEventLoop(log *slog.Logger, reconciler *projection.Reconciler, typing *projection.TypingTracker,
	messages, signals <-chan event.RawPayload, updates chan<- event.DomainEvent) *EventLoop {
	return &EventLoop{
		log:        log,
		reconciler: reconciler,
		typing:     typing,
		messages:   messages,
		signals:    signals,
		updates:    updates,
		sweep:      DefaultTypingSweep,
		now:        time.Now,
	}
}

// Run returns nil when ctx is canceled or both inbound channels are closed.
func (l *EventLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.sweep)
	defer ticker.Stop()

	messages, signals := l.messages, l.signals
	for messages != nil || signals != nil {
		select {
		case <-ctx.Done():
			l.log.Debug("Context done, stopping event loop")
			return nil
		case <-ticker.C:
			l.SweepTyping()
		case raw, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			l.HandleMessage(raw)
		case raw, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			l.HandleTyping(raw)
		}
	}
	return nil
}

func (l *EventLoop) HandleMessage(raw event.RawPayload) {
	outcome, key := l.reconciler.RecordIncoming(raw)
	if !outcome.Changed() {
		l.log.Debug("Inbound message ignored", "key", key, "outcome", outcome.String())
		return
	}
	reason := event.ReasonAppended
	if outcome == projection.OutcomeConfirmed {
		reason = event.ReasonConfirmed
	}
	l.emit(event.ConversationUpdated{Key: key, Reason: reason, At: l.now()})
}

func (l *EventLoop) HandleTyping(raw event.RawPayload) {
	evt, err := event.NormalizeTyping(raw, l.now())
	if err != nil {
		l.log.Warn("Dropping typing signal", "error", err)
		return
	}
	if !l.typing.Observe(evt) {
		l.log.Debug("Typing signal for another participant", "receiver", evt.ReceiverID)
		return
	}
	l.emit(event.ConversationUpdated{Key: evt.ConversationKey(), Reason: event.ReasonTyping, At: evt.At})
}

// SweepTyping announces every typing flag that cleared by itself, so the UI
// can drop the indicator without polling.
func (l *EventLoop) SweepTyping() {
	self := l.reconciler.Self().ID
	for _, partner := range l.typing.Expire() {
		l.emit(event.ConversationUpdated{Key: domain.NewConversationKey(self, partner), Reason: event.ReasonTyping, At: l.now()})
	}
}

func (l *EventLoop) emit(evt event.ConversationUpdated) {
	if l.updates == nil {
		return
	}
	select {
	case l.updates <- evt:
	default:
		l.log.Debug("Update channel full, UI notification lost", "key", evt.Key)
	}
}
