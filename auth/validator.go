package auth

import (
	"chat-sync/domain"
	"chat-sync/errors"
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ComposeRequest is what the user typed in the compose box for a partner.
type ComposeRequest struct {
	SenderID   domain.ParticipantID
	ReceiverID domain.ParticipantID `validate:"required,nefield=SenderID"`
	Content    string               `validate:"required"`
}

// ValidateCompose trims the content and rejects what must never reach the conversation.
// The returned request carries the trimmed content.
func ValidateCompose(req ComposeRequest, maxLength int) (ComposeRequest, error) {
	req.Content = strings.TrimSpace(req.Content)
	if err := validate.Struct(req); err != nil {
		return req, toComposeError(err)
	}
	if maxLength > 0 {
		if err := validate.Var(req.Content, fmt.Sprintf("max=%d", maxLength)); err != nil {
			return req, fmt.Errorf("%w: more than %d characters", errors.ErrContentTooLong, maxLength)
		}
	}
	return req, nil
}

func toComposeError(err error) error {
	var validationErrors validator.ValidationErrors
	if !stdErrors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}
	first := validationErrors[0]
	switch {
	case first.Field() == "Content":
		return errors.ErrEmptyContent
	case first.Field() == "ReceiverID" && first.Tag() == "required":
		return fmt.Errorf("%w: no receiver", errors.ErrUnresolvedParticipant)
	case first.Field() == "ReceiverID":
		return errors.ErrSelfMessage
	default:
		return fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}
}
