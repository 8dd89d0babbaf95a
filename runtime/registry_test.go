package runtime

import (
	"chat-sync/domain"
	"chat-sync/domain/event"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type Sink struct {
	name string
}

func (s Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	return nil
}

func TestRegistry_Subscribe_One_Conversation_One_Consumer(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	consumerID := uuid.NewString()
	key := domain.NewConversationKey(1, 2)
	sink := Sink{name: "chat-window"}

	// Given nobody watches anything
	req.Empty(registry.sessions)
	req.Empty(registry.watchers)

	// When a consumer subscribes to a conversation
	registry.Subscribe(consumerID, key, sink)

	// Then
	req.Len(registry.sessions, 1)
	req.Equal(sink, registry.sessions[consumerID])
	req.Contains(registry.watchers[key], consumerID)
	req.Len(registry.GetSinksForConversation(key), 1)
	req.Contains(registry.GetSinksForConversation(key), sink)
	req.Nil(registry.GetSinksForConversation(domain.NewConversationKey(1, 3)))
}

func TestRegistry_Subscribe_One_Conversation_Multiple_Consumers(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	key := domain.NewConversationKey(1, 2)
	sink1 := Sink{name: "chat-window"}
	sink2 := Sink{name: "notification-badge"}

	registry.Subscribe(uuid.NewString(), key, sink1)
	registry.Subscribe(uuid.NewString(), key, sink2)

	req.Len(registry.sessions, 2)
	req.Len(registry.watchers[key], 2)
	req.ElementsMatch([]any{sink1, sink2}, toAny(registry.GetSinksForConversation(key)))
}

func TestRegistry_UnSubscribe_Last_Conversation_Forgets_Consumer(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	consumerID := uuid.NewString()
	key := domain.NewConversationKey(1, 2)

	registry.Subscribe(consumerID, key, Sink{})
	registry.Unsubscribe(consumerID, key)

	// Then no consumer and no conversation is left
	req.Empty(registry.sessions)
	req.Empty(registry.watchers)
	req.Nil(registry.GetSinksForConversation(key))
}

func TestRegistry_UnSubscribe_Keeps_Other_Conversations(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	consumerID := uuid.NewString()
	key12 := domain.NewConversationKey(1, 2)
	key13 := domain.NewConversationKey(1, 3)
	sink := Sink{name: "inbox"}

	// Given a consumer watching two conversations
	registry.Subscribe(consumerID, key12, sink)
	registry.Subscribe(consumerID, key13, sink)

	// When it stops watching one of them
	registry.Unsubscribe(consumerID, key12)

	// Then its sink still receives the other one
	req.Nil(registry.GetSinksForConversation(key12))
	req.Len(registry.GetSinksForConversation(key13), 1)
	req.Contains(registry.sessions, consumerID)
}

func toAny[T any](items []T) []any {
	res := make([]any, len(items))
	for i, item := range items {
		res[i] = item
	}
	return res
}
