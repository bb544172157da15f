package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store,
// or when a write is attempted against an inactive session.
var ErrSessionNotFound = errors.New("session not found")

var (
	// ErrAlreadyMember is returned when a participant joins a session twice.
	ErrAlreadyMember = errors.New("participant already in session")
	// ErrNotAMember is returned when a participant has no membership in the session.
	ErrNotAMember = errors.New("participant not in session")
	// ErrUnauthorized is returned when the participant's role does not allow the operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnknownCommand is returned for a prefixed command that is not recognized.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrNotImplemented is returned for commands that are recognized but not available yet.
	ErrNotImplemented = errors.New("command not implemented")
	// ErrValidation is returned for malformed input or command arguments.
	ErrValidation = errors.New("validation failed")
	// ErrStorage wraps failures of the persistence layer.
	ErrStorage = errors.New("storage failure")
	// ErrGeneration wraps failures of the completion bridge.
	ErrGeneration = errors.New("generation failed")
	// ErrNotFound is returned when a scene state or entity does not exist.
	ErrNotFound = errors.New("not found")
)
