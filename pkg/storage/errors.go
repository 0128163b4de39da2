package storage

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// ErrTokenInvalid covers every reason a redemption can be refused:
	// expiry, exhaustion, and revocation. Callers that need the reason can
	// inspect the wrapped message, but the distinction is deliberately not
	// part of the API so clients cannot probe token state.
	ErrTokenInvalid = errors.New("bootstrap token is invalid")

	// ErrInvalidTransition is returned by UpdateNode when a mutation
	// attempts a node status change the state machine forbids, e.g. back
	// to pending after the node has been ready.
	ErrInvalidTransition = errors.New("invalid node status transition")
)
