package askdb

import (
	"context"
	"fmt"
	"strings"
)

// Streamer opens the streaming turn endpoint. The caller must ensure only one
// call is active per session; the Session enforces this by rejecting
// concurrent sends.
type Streamer interface {
	OpenTurn(ctx context.Context, req TurnRequest) (Stream, error)
}

// Uploader uploads a local file and returns the server's attachment handle.
// Uploads are best-effort: the Session logs failures and proceeds without the
// failed attachment.
type Uploader interface {
	UploadFile(ctx context.Context, path string) (Attachment, error)
}

// ConversationService is the CRUD surface of the backend. GetConversation
// returns ErrConversationNotFound when the server no longer knows the id
// (e.g. after a backend restart), which callers use to invalidate stale
// local state.
type ConversationService interface {
	ListConversations(ctx context.Context) ([]Conversation, error)
	GetConversation(ctx context.Context, id string) ([]Message, error)
	DeleteConversation(ctx context.Context, id string) error
	DeleteAllConversations(ctx context.Context) (int, error)
	RenameConversation(ctx context.Context, id, title string) error
}

// TurnRequest is the payload for one streaming turn. ConversationID is empty
// when no known-valid conversation is selected; the server then creates a new
// conversation and reports its id in the done event.
type TurnRequest struct {
	Message        string
	ConversationID string
	Attachments    []string
}

// Validate checks universal constraints on TurnRequest.
func (r TurnRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("message must not be empty: %w", ErrValidation)
	}
	return nil
}
