package exchange

import "errors"

var (
	// ErrEmptyMessage is returned when a request carries no message text.
	ErrEmptyMessage = errors.New("message is required")
	// ErrMissingConversation is returned when the provider completes an
	// exchange without reporting a conversation id.
	ErrMissingConversation = errors.New("provider returned no conversation id")
	// ErrMissingChat is returned when a created chat has no id to poll.
	ErrMissingChat = errors.New("provider returned no chat id")
)
