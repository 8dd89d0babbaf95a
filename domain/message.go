// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
package domain

import (
	"time"
)

// Message is one entry of a conversation.
// ID is empty until the server has confirmed the message.
// TempID is set on every message originated by the local client.
type Message struct {
	ID         string        `json:"id,omitempty"`
	TempID     string        `json:"tempId,omitempty"`
	SenderID   ParticipantID `json:"senderId"`
	ReceiverID ParticipantID `json:"receiverId"`
	Content    string        `json:"content"`
	Timestamp  time.Time     `json:"timestamp"`
	Read       bool          `json:"read"`
}

// Confirmed reports whether the server assigned an identifier.
func (m Message) Confirmed() bool {
	return m.ID != ""
}

// Key returns the conversation this message belongs to.
func (m Message) Key() ConversationKey {
	return NewConversationKey(m.SenderID, m.ReceiverID)
}

// Partner returns the other participant of the message from the point of view of self.
func (m Message) Partner(self ParticipantID) ParticipantID {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}
