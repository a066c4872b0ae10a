package chat

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewSessionID mints a fresh 26-char ULID session identifier. A new session
// carries no history; the caller keeps the chat id separately.
func NewSessionID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewMessageID returns a random UUID for messages appended without a
// caller-supplied id.
func NewMessageID() string {
	return uuid.NewString()
}
