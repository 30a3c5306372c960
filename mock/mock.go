// Package mock provides test doubles for askdb interfaces using function
// fields.
package mock

import (
	"context"
	"io"

	"github.com/askdb/askdb"
)

// Interface compliance checks.
var (
	_ askdb.Streamer            = (*Streamer)(nil)
	_ askdb.Stream              = (*Stream)(nil)
	_ askdb.Uploader            = (*Uploader)(nil)
	_ askdb.ConversationService = (*ConversationService)(nil)
)

// Streamer is a test double for askdb.Streamer.
// Set OpenTurnFn before calling OpenTurn.
type Streamer struct {
	OpenTurnFn func(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error)
}

// OpenTurn delegates to OpenTurnFn.
func (s *Streamer) OpenTurn(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error) {
	return s.OpenTurnFn(ctx, req)
}

// Stream is a test double for askdb.Stream.
// NextFn panics when nil to catch missing setup. StateFn and CloseFn are
// nil-safe (zero value and no-op) because test code commonly calls
// defer stream.Close() and these methods rarely need custom behavior.
type Stream struct {
	NextFn  func() (askdb.Event, error)
	StateFn func() askdb.StreamState
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (askdb.Event, error) {
	return s.NextFn()
}

// State delegates to StateFn. Returns StreamStateNew when StateFn is nil.
func (s *Stream) State() askdb.StreamState {
	if s.StateFn == nil {
		return askdb.StreamStateNew
	}
	return s.StateFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// Uploader is a test double for askdb.Uploader.
// Set UploadFileFn before calling UploadFile.
type Uploader struct {
	UploadFileFn func(ctx context.Context, path string) (askdb.Attachment, error)
}

// UploadFile delegates to UploadFileFn.
func (u *Uploader) UploadFile(ctx context.Context, path string) (askdb.Attachment, error) {
	return u.UploadFileFn(ctx, path)
}

// ConversationService is a test double for askdb.ConversationService.
// Set the function fields for the methods you need; the others panic when
// called to catch missing setup.
type ConversationService struct {
	ListConversationsFn      func(ctx context.Context) ([]askdb.Conversation, error)
	GetConversationFn        func(ctx context.Context, id string) ([]askdb.Message, error)
	DeleteConversationFn     func(ctx context.Context, id string) error
	DeleteAllConversationsFn func(ctx context.Context) (int, error)
	RenameConversationFn     func(ctx context.Context, id, title string) error
}

// ListConversations delegates to ListConversationsFn.
func (c *ConversationService) ListConversations(ctx context.Context) ([]askdb.Conversation, error) {
	return c.ListConversationsFn(ctx)
}

// GetConversation delegates to GetConversationFn.
func (c *ConversationService) GetConversation(ctx context.Context, id string) ([]askdb.Message, error) {
	return c.GetConversationFn(ctx, id)
}

// DeleteConversation delegates to DeleteConversationFn.
func (c *ConversationService) DeleteConversation(ctx context.Context, id string) error {
	return c.DeleteConversationFn(ctx, id)
}

// DeleteAllConversations delegates to DeleteAllConversationsFn.
func (c *ConversationService) DeleteAllConversations(ctx context.Context) (int, error) {
	return c.DeleteAllConversationsFn(ctx)
}

// RenameConversation delegates to RenameConversationFn.
func (c *ConversationService) RenameConversation(ctx context.Context, id, title string) error {
	return c.RenameConversationFn(ctx, id, title)
}

// EventStream builds a Stream that yields the given events in order and
// io.EOF afterwards, mirroring how the real decoder behaves after a terminal
// event. Useful for tests that only care about event sequences.
func EventStream(events ...askdb.Event) *Stream {
	i := 0
	return &Stream{
		NextFn: func() (askdb.Event, error) {
			if i >= len(events) {
				return nil, io.EOF
			}
			evt := events[i]
			i++
			return evt, nil
		},
	}
}
