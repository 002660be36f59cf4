package session

import (
	"strings"

	"github.com/google/uuid"
)

// NewSessionID returns a generated session id of the form session_<12 hex>.
func NewSessionID() string {
	return "session_" + randomHex(12)
}

// NewUserID returns a generated user id of the form user_<8 hex>.
func NewUserID() string {
	return "user_" + randomHex(8)
}

// NewMessageID returns a generated message id of the form msg_<16 hex>.
func NewMessageID() string {
	return "msg_" + randomHex(16)
}

func randomHex(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
