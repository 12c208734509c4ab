package domain

import "errors"

// Shared failure taxonomy. Adapters map these onto HTTP statuses and
// websocket close codes; everything else wraps them with context.
var (
	// ErrNotFound: a referenced call or conversation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden: the actor is not a participant or member of the target.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyInCall: the caller is already a participant of an active call.
	ErrAlreadyInCall = errors.New("already in an active call")

	// ErrParticipantBusy: an invitee is already reserved by another active call.
	ErrParticipantBusy = errors.New("participant already in an active call")

	// ErrUnauthenticated: missing or invalid credential at handshake.
	ErrUnauthenticated = errors.New("authentication required")
)
