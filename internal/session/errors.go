package session

import "github.com/cockroachdb/errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrMessageTooLarge = errors.New("message exceeds storage capacity")
	ErrInvalidTitle    = errors.New("session title is empty")
	ErrInvalidLayout   = errors.New("unknown layout mode")
)
