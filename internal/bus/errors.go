package bus

import "errors"

var (
	// ErrDuplicateEvent is returned when an event id is already stored.
	ErrDuplicateEvent = errors.New("event id already exists")
	// ErrInvalidAckState is returned for acknowledgment targets other than acked or nacked.
	ErrInvalidAckState = errors.New("ack state must be acked or nacked")
	// ErrInvalidEnvelope is returned when an envelope fails validation.
	ErrInvalidEnvelope = errors.New("invalid event envelope")
)
