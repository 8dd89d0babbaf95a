package runtime

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"sync"
)

type Set map[string]struct{}

// Registry tracks which UI consumers watch which conversation.
// A consumer has a single sink, shared by all the conversations it watches.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]contract.EventSink                  // consumer -> sink
	watchers  map[domain.ConversationKey]Set                 // conversation -> consumers
	watchings map[string]map[domain.ConversationKey]struct{} // consumer -> conversations
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:  make(map[string]contract.EventSink),
		watchers:  make(map[domain.ConversationKey]Set),
		watchings: make(map[string]map[domain.ConversationKey]struct{}),
	}
}

// GetSinksForConversation resolves the consumers watching key into their sinks.
// Returns nil when nobody watches the conversation.
func (r *Registry) GetSinksForConversation(key domain.ConversationKey) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.watchers[key]
	if !ok {
		return nil
	}
	var sinks []contract.EventSink
	for consumerID := range members {
		if sink, exists := r.sessions[consumerID]; exists {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// Subscribe makes consumerID watch key. A later subscription replaces the consumer's sink.
func (r *Registry) Subscribe(consumerID string, key domain.ConversationKey, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[consumerID] = sink
	if _, ok := r.watchers[key]; !ok {
		r.watchers[key] = make(Set)
	}
	r.watchers[key][consumerID] = struct{}{}
	if _, ok := r.watchings[consumerID]; !ok {
		r.watchings[consumerID] = make(map[domain.ConversationKey]struct{})
	}
	r.watchings[consumerID][key] = struct{}{}
}

// Unsubscribe stops consumerID watching key.
// The consumer's sink is forgotten once it watches nothing, and empty
// conversation sets are removed.
func (r *Registry) Unsubscribe(consumerID string, key domain.ConversationKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.watchers[key]; ok {
		delete(members, consumerID)
		if len(members) == 0 {
			delete(r.watchers, key)
		}
	}
	if keys, ok := r.watchings[consumerID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(r.watchings, consumerID)
			delete(r.sessions, consumerID)
		}
	}
}
