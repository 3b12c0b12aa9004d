// Package types defines the shared types used across all mentord packages.
//
// These types form the lingua franca between providers, the chat orchestrator,
// and the live session controller. They are intentionally minimal — each package
// defines its own domain types, but cross-cutting data structures live here to
// avoid circular imports.
package types

// Message represents a single message in a mentor conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name (the user's chosen display name).
	Name string
}

// Roles used throughout the conversation plumbing.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Attachment is an inline binary payload accompanying a user message,
// e.g. an image sent to the mentor chat.
type Attachment struct {
	// MIMEType identifies the payload, e.g. "image/png" or "audio/webm".
	MIMEType string

	// Data is the raw payload bytes.
	Data []byte
}
