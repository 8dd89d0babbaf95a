package event

import (
	"chat-sync/domain"
	"time"
)

// DomainEvent is anything routed to a conversation.
type DomainEvent interface {
	ConversationKey() domain.ConversationKey
}

// RawPayload is an inbound JSON object as handed over by the transport.
// It is normalized into MessageReceived or TypingReceived before reaching the core.
type RawPayload map[string]any

// MessageReceived is a normalized inbound chat message.
type MessageReceived struct {
	ID         string
	TempID     string
	SenderID   domain.ParticipantID
	ReceiverID domain.ParticipantID
	Content    string
	At         time.Time
	Read       bool
}

func (m MessageReceived) ConversationKey() domain.ConversationKey {
	return domain.NewConversationKey(m.SenderID, m.ReceiverID)
}

func (m MessageReceived) ToMessage() domain.Message {
	return domain.Message{
		ID:         m.ID,
		TempID:     m.TempID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Timestamp:  m.At,
		Read:       m.Read,
	}
}

// TypingReceived signals that SenderID is composing a message to ReceiverID.
type TypingReceived struct {
	SenderID   domain.ParticipantID
	ReceiverID domain.ParticipantID
	At         time.Time
}

func (t TypingReceived) ConversationKey() domain.ConversationKey {
	return domain.NewConversationKey(t.SenderID, t.ReceiverID)
}

// ConversationUpdated is emitted after a conversation or its typing state changed.
type ConversationUpdated struct {
	Key    domain.ConversationKey
	Reason UpdateReason
	At     time.Time
}

func (c ConversationUpdated) ConversationKey() domain.ConversationKey {
	return c.Key
}

type UpdateReason string

const (
	ReasonAppended  UpdateReason = "appended"
	ReasonConfirmed UpdateReason = "confirmed"
	ReasonTyping    UpdateReason = "typing"
	ReasonRead      UpdateReason = "read"
	ReasonHistory   UpdateReason = "history"
)
