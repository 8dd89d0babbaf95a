//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-sync/domain"
	"chat-sync/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives conversation events, typically a UI component.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

type IRegistry interface {
	GetSinksForConversation(key domain.ConversationKey) []EventSink
	Subscribe(consumerID string, key domain.ConversationKey, sink EventSink)
	Unsubscribe(consumerID string, key domain.ConversationKey)
}

// Publisher sends a payload to a logical destination of the messaging transport.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload any) error
}

// Transport is a messaging session: it connects, subscribes to the personal
// inbound channel, and keeps reconnecting until its context is canceled.
// Inbound messages and typing signals come out of two separate channels.
type Transport interface {
	Worker
	Publisher
	Messages() <-chan event.RawPayload
	Typing() <-chan event.RawPayload
	Connected() bool
	Close() error
}

// Directory lists the users the local participant can talk to.
type Directory interface {
	ListPartners(ctx context.Context) ([]domain.Partner, error)
}

// HistoryFetcher returns the authoritative history of a pair, oldest first.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, a, b domain.ParticipantID) ([]event.RawPayload, error)
}

// IdentityStore is a synchronous key-value read of the local participant.
type IdentityStore interface {
	GetIdentity() (domain.Identity, error)
	SaveIdentity(identity domain.Identity) error
	ClearIdentity() error
}
