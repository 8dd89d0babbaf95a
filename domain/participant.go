// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"fmt"
	"strconv"
)

// ParticipantID identifies a user account. It is opaque to the chat core
// and only compared for equality and ordering.
type ParticipantID uint64

func (p ParticipantID) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// ConversationKey names the single conversation bucket of an unordered pair of participants.
type ConversationKey string

// NewConversationKey returns "{min}_{max}" so that key(a,b) == key(b,a).
func NewConversationKey(a, b ParticipantID) ConversationKey {
	if a > b {
		a, b = b, a
	}
	return ConversationKey(fmt.Sprintf("%d_%d", a, b))
}

// Partner is a selectable conversation partner as returned by the directory.
type Partner struct {
	ID          ParticipantID `json:"id"`
	DisplayName string        `json:"displayName"`
	AvatarURL   string        `json:"avatarUrl"`
}

// Identity is the local participant and its session token.
type Identity struct {
	ID    ParticipantID `json:"id" validate:"required"`
	Token string        `json:"token" validate:"required"`
}
