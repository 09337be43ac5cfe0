package models

import "errors"

// Error taxonomy for the game subsystem. All of these are recoverable:
// none should ever take the process down, and a failure affecting one
// chat or one user must not leak into others.
var (
	// ErrNotFound reports a missing chat, character, save or user.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyBound reports a second bind attempt on a chat that
	// already has a character. Binding is one-shot to avoid mid-story
	// identity swaps.
	ErrAlreadyBound = errors.New("character already chosen for this chat")

	// ErrUnavailable reports a failed call to the remote model
	// (network, auth or quota). The conversation history is left
	// untouched so the call can be retried.
	ErrUnavailable = errors.New("model unavailable")

	// ErrCorrupt reports a stored record that fails to parse. Corrupt
	// records are skipped during listing, never fatal.
	ErrCorrupt = errors.New("corrupt record")

	// ErrInvalidInput reports a request rejected before any side
	// effect, such as an empty message.
	ErrInvalidInput = errors.New("invalid input")
)
