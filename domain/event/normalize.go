package event

import (
	"chat-sync/domain"
	"chat-sync/errors"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Field names accepted on inbound payloads. The transport's native shape uses
// sender/to, the REST shape uses senderId/receiverId.
const (
	fieldSenderID   = "senderId"
	fieldReceiverID = "receiverId"
	fieldSender     = "sender"
	fieldTo         = "to"
	fieldID         = "id"
	fieldTempID     = "tempId"
	fieldContent    = "content"
	fieldTimestamp  = "timestamp"
	fieldRead       = "read"
)

// NormalizeMessage turns a loosely typed inbound payload into a MessageReceived.
// receivedAt is used when the payload carries no usable timestamp.
func NormalizeMessage(raw RawPayload, receivedAt time.Time) (MessageReceived, error) {
	sender, receiver, err := resolvePair(raw)
	if err != nil {
		return MessageReceived{}, err
	}

	content, _ := raw[fieldContent].(string)
	if strings.TrimSpace(content) == "" {
		return MessageReceived{}, errors.ErrEmptyContent
	}

	id, err := stringOrNumber(raw[fieldID])
	if err != nil {
		return MessageReceived{}, fmt.Errorf("%w: id: %v", errors.ErrInvalidPayload, err)
	}
	tempID, _ := raw[fieldTempID].(string)
	read, _ := raw[fieldRead].(bool)

	return MessageReceived{
		ID:         id,
		TempID:     strings.TrimSpace(tempID),
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		At:         parseTimestamp(raw[fieldTimestamp], receivedAt),
		Read:       read,
	}, nil
}

// NormalizeTyping resolves the participants of a typing signal.
func NormalizeTyping(raw RawPayload, receivedAt time.Time) (TypingReceived, error) {
	sender, receiver, err := resolvePair(raw)
	if err != nil {
		return TypingReceived{}, err
	}
	return TypingReceived{SenderID: sender, ReceiverID: receiver, At: receivedAt}, nil
}

func resolvePair(raw RawPayload) (domain.ParticipantID, domain.ParticipantID, error) {
	if raw == nil {
		return 0, 0, errors.ErrInvalidPayload
	}
	sender, err := resolveParticipant(firstPresent(raw, fieldSenderID, fieldSender))
	if err != nil {
		return 0, 0, fmt.Errorf("sender: %w", err)
	}
	receiver, err := resolveParticipant(firstPresent(raw, fieldReceiverID, fieldTo))
	if err != nil {
		return 0, 0, fmt.Errorf("receiver: %w", err)
	}
	if sender == receiver {
		return 0, 0, errors.ErrSelfMessage
	}
	return sender, receiver, nil
}

func firstPresent(raw RawPayload, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func resolveParticipant(v any) (domain.ParticipantID, error) {
	switch val := v.(type) {
	case float64:
		if val < 0 || val != math.Trunc(val) || val >= 1<<64 {
			return 0, errors.ErrUnresolvedParticipant
		}
		return domain.ParticipantID(val), nil
	case json.Number:
		return parseParticipant(val.String())
	case string:
		return parseParticipant(val)
	case int:
		if val < 0 {
			return 0, errors.ErrUnresolvedParticipant
		}
		return domain.ParticipantID(val), nil
	case int64:
		if val < 0 {
			return 0, errors.ErrUnresolvedParticipant
		}
		return domain.ParticipantID(val), nil
	case uint64:
		return domain.ParticipantID(val), nil
	case domain.ParticipantID:
		return val, nil
	default:
		return 0, errors.ErrUnresolvedParticipant
	}
}

func parseParticipant(s string) (domain.ParticipantID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.ErrUnresolvedParticipant
	}
	return domain.ParticipantID(n), nil
}

// stringOrNumber normalizes a server id, which backends send either as a
// JSON number or as a string.
func stringOrNumber(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case json.Number:
		return val.String(), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

// Timestamps without a zone, as LocalDateTime servers emit them, are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(v any, fallback time.Time) time.Time {
	switch val := v.(type) {
	case string:
		text := strings.TrimSpace(val)
		for _, layout := range timestampLayouts {
			if at, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
				return at.UTC()
			}
		}
	case float64:
		return time.UnixMilli(int64(val)).UTC()
	case json.Number:
		if ms, err := val.Int64(); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	case time.Time:
		return val
	}
	return fallback
}
