package event

import (
	"chat-sync/domain"
	"fmt"
	"time"
)

// Logical destinations of the messaging transport.
const (
	DestinationSend   = "/app/chat.send"
	DestinationTyping = "/app/chat.typing"
)

// PersonalChannel is the inbound channel a participant subscribes to.
func PersonalChannel(id domain.ParticipantID) string {
	return fmt.Sprintf("/user/%d/queue/messages", id)
}

// OutgoingMessage is what gets published for a local send.
// TempID lets the echo be matched with the optimistic entry.
type OutgoingMessage struct {
	SenderID   domain.ParticipantID `json:"senderId"`
	ReceiverID domain.ParticipantID `json:"receiverId"`
	Content    string               `json:"content"`
	TempID     string               `json:"tempId"`
	Timestamp  time.Time            `json:"timestamp"`
}

func NewOutgoingMessage(m domain.Message) OutgoingMessage {
	return OutgoingMessage{
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		TempID:     m.TempID,
		Timestamp:  m.Timestamp,
	}
}

// OutgoingTyping is the "I am typing" signal.
type OutgoingTyping struct {
	SenderID   domain.ParticipantID `json:"senderId"`
	ReceiverID domain.ParticipantID `json:"receiverId"`
}
