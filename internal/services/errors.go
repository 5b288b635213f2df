package services

import "errors"

// Protocol-level failure taxonomy. Validation and authorization failures are
// rejected synchronously and never partially persisted.
var (
	// ErrUnauthenticated: bad or missing credential at handshake time.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrAccessDenied: not a room member, not a participant, or a block
	// relationship exists in either direction.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound: the message, conversation or channel id does not resolve.
	// Soft-deleted messages are treated as gone.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyRead: delete attempted on a direct message the recipient has
	// already read.
	ErrAlreadyRead = errors.New("message already read")
	// ErrValidation: empty content with no attachment.
	ErrValidation = errors.New("validation failed")
)
