package askdb

import "time"

// Conversation is server-owned metadata about one conversation. The ID is
// server-assigned; a conversation does not exist client-side until the first
// successful turn (or a list refresh) confirms it.
type Conversation struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}
