// Package runtime wires the chat session together: transport, event loop, fanout to the UI.
// It orchestrates the system without containing business logic or domain rules.
package runtime

import (
	"chat-sync/auth"
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"chat-sync/projection"
	"chat-sync/runtime/workers"
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Settings tunes the session. Zero values fall back to the package defaults.
type Settings struct {
	BufferSize       int
	SinkTimeout      time.Duration
	TypingTimeout    time.Duration
	TypingDebounce   time.Duration
	MaxContentLength int
	// MetricInterval enables channel capacity sampling when positive.
	MetricInterval       time.Duration
	LowCapacityThreshold int
	Clock                func() time.Time
}

const DefaultBufferSize = 64

// Orchestrator is what the UI talks to. Every read and write on conversations
// of the local participant goes through it.
type Orchestrator struct {
	mu               sync.Mutex
	log              *slog.Logger
	self             domain.Identity
	supervisor       contract.ISupervisor
	registry         contract.IRegistry
	transport        contract.Transport
	directory        contract.Directory
	history          contract.HistoryFetcher
	reconciler       *projection.Reconciler
	typing           *projection.TypingTracker
	debouncer        *projection.TypingDebouncer
	permanentSinks   []contract.EventSink
	updates          chan event.DomainEvent
	sinkTimeout      time.Duration
	maxContentLength int
	metricInterval   time.Duration
	lowCapacity      int
	now              func() time.Time
	cancel           context.CancelFunc
	stopped          bool
}

func NewOrchestrator(log *slog.Logger, self domain.Identity, supervisor contract.ISupervisor,
	registry contract.IRegistry, transport contract.Transport, directory contract.Directory,
	history contract.HistoryFetcher, settings Settings) *Orchestrator {
	now := settings.Clock
	if now == nil {
		now = time.Now
	}
	bufferSize := settings.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Orchestrator{
		log:              log,
		self:             self,
		supervisor:       supervisor,
		registry:         registry,
		transport:        transport,
		directory:        directory,
		history:          history,
		reconciler:       projection.NewReconciler(log, self, projection.WithClock(now)),
		typing:           projection.NewTypingTracker(self.ID, settings.TypingTimeout, now),
		debouncer:        projection.NewTypingDebouncer(log, transport, self.ID, settings.TypingDebounce, now),
		updates:          make(chan event.DomainEvent, bufferSize),
		sinkTimeout:      settings.SinkTimeout,
		maxContentLength: settings.MaxContentLength,
		metricInterval:   settings.MetricInterval,
		lowCapacity:      settings.LowCapacityThreshold,
		now:              now,
	}
}

// Add registers sinks notified of every conversation update, whatever the conversation.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// Start registers the transport, the event loop and the fanout with the
// supervisor and blocks until the context is canceled or Stop is called.
// After Stop it returns immediately, whether Stop came first or not.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. Preparation phase (No Lock)
	loop := NewEventLoop(o.log, o.reconciler, o.typing, o.transport.Messages(), o.transport.Typing(), o.updates)
	loop.now = o.now
	fanout := workers.NewEventFanout(o.log, o.updates, o.registry, o.sinkTimeout)
	supervised := []contract.Worker{o.transport, loop, fanout}
	if o.metricInterval > 0 {
		supervised = append(supervised, workers.NewChannelCapacityWorker(o.log, []workers.NamedChannel{
			{Name: "inbound-messages", Channel: o.transport.Messages()},
			{Name: "inbound-typing", Channel: o.transport.Typing()},
			{Name: "conversation-updates", Channel: o.updates},
		}, o.metricInterval, o.lowCapacity))
	}

	// 2. Critical Section (Short Lock)
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		o.log.Info("Chat session stopped before it started", "participant", o.self.ID)
		return nil
	}
	o.cancel = cancel
	fanout.Add(o.permanentSinks...)
	o.supervisor.Add(supervised...)
	o.mu.Unlock()

	// 3. Execution phase (No Lock)
	o.log.Info("Starting chat session", "participant", o.self.ID)
	o.supervisor.Run(ctx)
	return nil
}

// Send records the message optimistically, then hands it to the transport.
// When the transport is down the message is returned with an error wrapping
// errors.ErrNotConnected and stays in the conversation without an id.
func (o *Orchestrator) Send(ctx context.Context, partner domain.ParticipantID, content string) (domain.Message, error) {
	compose, err := auth.ValidateCompose(auth.ComposeRequest{
		SenderID:   o.self.ID,
		ReceiverID: partner,
		Content:    content,
	}, o.maxContentLength)
	if err != nil {
		return domain.Message{}, err
	}

	msg := o.reconciler.RecordOutgoing(o.self.ID, partner, compose.Content)
	o.emit(msg.Key(), event.ReasonAppended)

	if err := o.transport.Publish(ctx, event.DestinationSend, event.NewOutgoingMessage(msg)); err != nil {
		if !stdErrors.Is(err, errors.ErrNotConnected) {
			err = fmt.Errorf("%w: %w", errors.ErrNotConnected, err)
		}
		o.log.Warn("Message kept locally", "tempId", msg.TempID, "error", err)
		return msg, err
	}
	return msg, nil
}

// NotifyInput is called on every change of the compose box.
func (o *Orchestrator) NotifyInput(ctx context.Context, partner domain.ParticipantID, text string) {
	o.debouncer.OnInput(ctx, partner, text)
}

func (o *Orchestrator) Conversation(partner domain.ParticipantID) []domain.Message {
	return o.reconciler.GetConversation(o.self.ID, partner)
}

func (o *Orchestrator) Conversations() []domain.ConversationKey {
	return o.reconciler.Conversations()
}

func (o *Orchestrator) IsTyping(partner domain.ParticipantID) bool {
	return o.typing.IsTyping(partner)
}

func (o *Orchestrator) TypingPartners() []domain.ParticipantID {
	return o.typing.Typing()
}

func (o *Orchestrator) Self() domain.Identity {
	return o.reconciler.Self()
}

func (o *Orchestrator) Connected() bool {
	return o.transport.Connected()
}

func (o *Orchestrator) Partners(ctx context.Context) ([]domain.Partner, error) {
	return o.directory.ListPartners(ctx)
}

// LoadHistory merges the authoritative history of the conversation with partner.
// Entries that cannot be normalized are skipped. It returns how many messages were added.
func (o *Orchestrator) LoadHistory(ctx context.Context, partner domain.ParticipantID) (int, error) {
	raws, err := o.history.FetchHistory(ctx, o.self.ID, partner)
	if err != nil {
		return 0, err
	}

	receivedAt := o.now()
	history := make([]event.MessageReceived, 0, len(raws))
	for _, raw := range raws {
		evt, err := event.NormalizeMessage(raw, receivedAt)
		if err != nil {
			o.log.Warn("Skipping history entry", "partner", partner, "error", err)
			continue
		}
		history = append(history, evt)
	}

	added := o.reconciler.MergeHistory(o.self.ID, partner, history)
	if added > 0 {
		o.emit(domain.NewConversationKey(o.self.ID, partner), event.ReasonHistory)
	}
	return added, nil
}

// MarkRead flags every message received from partner as read.
func (o *Orchestrator) MarkRead(partner domain.ParticipantID) int {
	changed := o.reconciler.MarkRead(o.self.ID, partner)
	if changed > 0 {
		o.emit(domain.NewConversationKey(o.self.ID, partner), event.ReasonRead)
	}
	return changed
}

// Subscribe notifies sink of every update of the conversation with partner.
func (o *Orchestrator) Subscribe(consumerID string, partner domain.ParticipantID, sink contract.EventSink) {
	o.registry.Subscribe(consumerID, domain.NewConversationKey(o.self.ID, partner), sink)
}

func (o *Orchestrator) Unsubscribe(consumerID string, partner domain.ParticipantID) {
	o.registry.Unsubscribe(consumerID, domain.NewConversationKey(o.self.ID, partner))
}

// Stop initiates a graceful shutdown. Recorded conversations stay readable.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting chat session shutdown")
	o.mu.Lock()
	o.stopped = true
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	o.supervisor.Stop()
	if err := o.transport.Close(); err != nil {
		o.log.Debug("Transport close", "error", err)
	}
}

func (o *Orchestrator) emit(key domain.ConversationKey, reason event.UpdateReason) {
	select {
	case o.updates <- event.ConversationUpdated{Key: key, Reason: reason, At: o.now()}:
	default:
		o.log.Debug("Update channel full, UI notification lost", "key", key)
	}
}
