package workers

import (
	"chat-sync/contract"
	"chat-sync/domain/event"
	"context"
	"log/slog"
	"time"
)

const DefaultSinkTimeout = time.Second

// EventFanout broadcasts conversation events to the UI sinks subscribed to
// the conversation, plus the permanent sinks.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// durability, or retries: a sink slower than sinkTimeout misses the event.
// Events reach a given sink in the order they were emitted.
type EventFanout struct {
	log         *slog.Logger
	events      <-chan event.DomainEvent
	registry    contract.IRegistry
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent,
	registry contract.IRegistry, sinkTimeout time.Duration) *EventFanout {
	if sinkTimeout <= 0 {
		sinkTimeout = DefaultSinkTimeout
	}
	return &EventFanout{log: log, events: events, registry: registry, sinkTimeout: sinkTimeout}
}

// Add registers sinks receiving every event regardless of the conversation.
func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		}
	}
}

// Fanout delivers one event to every interested sink.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	targets := append([]contract.EventSink(nil), w.sinks...)
	targets = append(targets, w.registry.GetSinksForConversation(evt.ConversationKey())...)
	for _, sink := range targets {
		w.deliver(ctx, sink, evt)
	}
}

func (w *EventFanout) deliver(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) {
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sink.Consume(sinkCtx, evt)
	}()

	select {
	case err := <-done:
		if err != nil {
			w.log.Warn("Sink failed to consume event", "key", evt.ConversationKey(), "error", err)
		}
	case <-sinkCtx.Done():
		w.log.Warn("Sink timed out, event dropped", "key", evt.ConversationKey())
	}
}
