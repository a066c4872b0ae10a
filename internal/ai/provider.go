package ai

import "context"

// Message is a role/content pair sent to a provider as conversational context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the opaque text-generation capability: it takes the prompt
// history and returns the assistant reply. Failures propagate as-is.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
