package engine

import "errors"

var (
	ErrNotParticipant      = errors.New("not a participant of this chat")
	ErrEmptyContent        = errors.New("message content is empty")
	ErrInvalidParticipants = errors.New("a chat needs at least two distinct participants")
)
