package pjlink

import "errors"

// Domain errors for the PJLink package.
var (
	// ErrNoAddress is returned by SendRaw when no projector address is set.
	// Regular commands are silently skipped instead.
	ErrNoAddress = errors.New("pjlink: no address configured")

	// ErrConnectionFailed is returned when the TCP connection cannot be
	// opened or breaks before a response arrives.
	ErrConnectionFailed = errors.New("pjlink: connection failed")

	// ErrDeadlineExceeded is returned when a command exchange outlives its
	// deadline and the socket is force-closed.
	ErrDeadlineExceeded = errors.New("pjlink: command deadline exceeded")

	// ErrBadGreeting is returned when the first line from the projector is
	// not a PJLINK greeting.
	ErrBadGreeting = errors.New("pjlink: unexpected greeting")

	// ErrAuthRejected is returned when the projector answers ERRA.
	ErrAuthRejected = errors.New("pjlink: authentication rejected")

	// ErrQueueStopped is returned when a command is pushed after Stop.
	ErrQueueStopped = errors.New("pjlink: command queue stopped")

	// ErrInvalidInput is returned by validation helpers for input codes
	// outside 11-59.
	ErrInvalidInput = errors.New("pjlink: input code out of range")

	// ErrUnknownProjector is returned when a projector ID is not configured.
	ErrUnknownProjector = errors.New("pjlink: unknown projector")

	// ErrUnknownCommand is returned when a bridge command name is not
	// recognised.
	ErrUnknownCommand = errors.New("pjlink: unknown command")

	// ErrInvalidParameters is returned when a bridge command carries missing
	// or malformed parameters.
	ErrInvalidParameters = errors.New("pjlink: invalid command parameters")
)
