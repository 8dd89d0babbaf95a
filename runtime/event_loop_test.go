package runtime

import (
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/projection"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	current time.Time
}

func (c *stepClock) Now() time.Time {
	return c.current
}

func newTestLoop(self domain.ParticipantID) (*EventLoop, *stepClock, chan event.RawPayload, chan event.RawPayload, chan event.DomainEvent) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	clock := &stepClock{current: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	reconciler := projection.NewReconciler(log, domain.Identity{ID: self, Token: "token"}, projection.WithClock(clock.Now))
	typing := projection.NewTypingTracker(self, 2*time.Second, clock.Now)
	messages := make(chan event.RawPayload, 8)
	signals := make(chan event.RawPayload, 8)
	updates := make(chan event.DomainEvent, 8)
	loop := NewEventLoop(log, reconciler, typing, messages, signals, updates)
	loop.now = clock.Now
	return loop, clock, messages, signals, updates
}

func TestEventLoop_EchoConfirmsOptimisticMessage(t *testing.T) {
	req := require.New(t)
	loop, _, _, _, updates := newTestLoop(1)

	// Given an optimistic message to participant 2
	sent := loop.reconciler.RecordOutgoing(1, 2, "Xin chào")

	// When its echo comes back with a server id
	loop.HandleMessage(event.RawPayload{
		"id": "99", "tempId": sent.TempID, "senderId": float64(1), "receiverId": float64(2),
		"content": "Xin chào", "timestamp": "2026-03-01T10:00:01Z",
	})

	// Then the entry is confirmed in place and the UI is told so
	conversation := loop.reconciler.GetConversation(1, 2)
	req.Len(conversation, 1)
	req.Equal("99", conversation[0].ID)
	req.Equal(sent.TempID, conversation[0].TempID)
	req.Equal(event.ConversationUpdated{
		Key:    domain.NewConversationKey(1, 2),
		Reason: event.ReasonConfirmed,
		At:     loop.now(),
	}, <-updates)
}

func TestEventLoop_ReplayIsSilent(t *testing.T) {
	req := require.New(t)
	loop, _, _, _, updates := newTestLoop(1)
	raw := event.RawPayload{"id": "7", "sender": "2", "to": "1", "content": "hi"}

	loop.HandleMessage(raw)
	loop.HandleMessage(raw)

	req.Len(loop.reconciler.GetConversation(1, 2), 1)
	req.Len(updates, 1)
}

func TestEventLoop_MalformedMessageIsDropped(t *testing.T) {
	req := require.New(t)
	loop, _, _, _, updates := newTestLoop(1)

	loop.HandleMessage(event.RawPayload{"senderId": "abc", "receiverId": float64(1), "content": "hi"})
	loop.HandleMessage(event.RawPayload{"senderId": float64(2), "receiverId": float64(1), "content": "   "})

	req.Empty(loop.reconciler.Conversations())
	req.Empty(updates)
}

func TestEventLoop_TypingSignal(t *testing.T) {
	req := require.New(t)
	loop, clock, _, _, updates := newTestLoop(1)

	// Given a typing signal from 2 addressed to us, and one addressed to someone else
	loop.HandleTyping(event.RawPayload{"senderId": float64(2), "receiverId": float64(1)})
	loop.HandleTyping(event.RawPayload{"senderId": float64(3), "receiverId": float64(4)})

	// Then only the first one shows
	req.True(loop.typing.IsTyping(2))
	req.False(loop.typing.IsTyping(3))
	req.Len(updates, 1)
	req.Equal(event.ReasonTyping, (<-updates).(event.ConversationUpdated).Reason)

	// And it clears by itself after the timeout
	clock.current = clock.current.Add(2 * time.Second)
	req.False(loop.typing.IsTyping(2))
}

func TestEventLoop_TypingExpiryIsAnnounced(t *testing.T) {
	req := require.New(t)
	loop, clock, _, _, updates := newTestLoop(1)

	// Given partner 2 typing to us
	loop.HandleTyping(event.RawPayload{"senderId": float64(2), "receiverId": float64(1)})
	<-updates

	// When a sweep runs inside the window nothing is announced
	clock.current = clock.current.Add(time.Second)
	loop.SweepTyping()
	req.Empty(updates)

	// Then once the window passed the conversation is updated exactly once
	clock.current = clock.current.Add(time.Second)
	loop.SweepTyping()
	loop.SweepTyping()
	req.Len(updates, 1)
	req.Equal(event.ConversationUpdated{
		Key:    domain.NewConversationKey(1, 2),
		Reason: event.ReasonTyping,
		At:     clock.Now(),
	}, <-updates)
	req.False(loop.typing.IsTyping(2))
}

func TestEventLoop_RunSweepsTyping(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	reconciler := projection.NewReconciler(log, domain.Identity{ID: 1, Token: "token"})
	typing := projection.NewTypingTracker(1, 30*time.Millisecond, nil)
	signals := make(chan event.RawPayload, 1)
	updates := make(chan event.DomainEvent, 4)
	loop := NewEventLoop(log, reconciler, typing, nil, signals, updates)
	loop.sweep = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	// Given a typing signal delivered through the running loop
	signals <- event.RawPayload{"senderId": float64(2), "receiverId": float64(1)}
	req.Equal(event.ReasonTyping, (<-updates).(event.ConversationUpdated).Reason)

	// Then the loop announces the expiry on its own
	select {
	case evt := <-updates:
		req.Equal(domain.NewConversationKey(1, 2), evt.(event.ConversationUpdated).Key)
		req.False(typing.IsTyping(2))
	case <-time.After(time.Second):
		t.Fatal("typing expiry was never announced")
	}
}

func TestEventLoop_RunStopsWhenChannelsClose(t *testing.T) {
	req := require.New(t)
	loop, _, messages, signals, updates := newTestLoop(1)

	messages <- event.RawPayload{"id": "1", "senderId": float64(2), "receiverId": float64(1), "content": "a"}
	messages <- event.RawPayload{"id": "2", "senderId": float64(2), "receiverId": float64(1), "content": "b"}
	close(messages)
	close(signals)

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		t.Fatal("event loop did not stop when its channels closed")
	}

	conversation := loop.reconciler.GetConversation(1, 2)
	req.Len(conversation, 2)
	req.Equal("a", conversation[0].Content)
	req.Equal("b", conversation[1].Content)
	req.Len(updates, 2)
}

func TestEventLoop_FullUpdateChannelDoesNotBlock(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	reconciler := projection.NewReconciler(log, domain.Identity{ID: 1, Token: "token"})
	updates := make(chan event.DomainEvent, 1)
	loop := NewEventLoop(log, reconciler, projection.NewTypingTracker(1, 0, nil), nil, nil, updates)

	for i := range 3 {
		loop.HandleMessage(event.RawPayload{"id": float64(i), "senderId": float64(2), "receiverId": float64(1), "content": "x"})
	}

	req.Len(reconciler.GetConversation(1, 2), 3)
	req.Len(updates, 1)
}
