package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Inbound payloads
	ErrUnresolvedParticipant = fmt.Errorf("participant identifier cannot be resolved")
	ErrSelfMessage           = fmt.Errorf("sender and receiver are the same participant")
	ErrEmptyContent          = fmt.Errorf("message content is empty")
	ErrContentTooLong        = fmt.Errorf("message content is too long")
	ErrInvalidPayload        = fmt.Errorf("invalid payload")

	// Transport
	ErrNotConnected     = fmt.Errorf("cannot send: not connected")
	ErrTransportClosed  = fmt.Errorf("transport session closed")
	ErrUnexpectedStatus = fmt.Errorf("unexpected response status")

	// Identity
	ErrIdentityNotFound = fmt.Errorf("no identity stored")
	ErrIdentityMismatch = fmt.Errorf("token does not belong to this participant")
	ErrTokenExpired     = fmt.Errorf("session token expired")
	ErrInvalidToken     = fmt.Errorf("session token cannot be parsed")
)
