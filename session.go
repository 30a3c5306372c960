package askdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SessionState is the lifecycle state of a Session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateSending
	StateStreaming
	StateCompleted
	StateErrored
	StateCancelled
)

// Terminal reports whether the state is a turn outcome. A session in a
// terminal state accepts the next Send immediately; the implicit
// terminal -> Idle transition needs no separate step.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateErrored || s == StateCancelled
}

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Session owns exactly one turn at a time: it accepts a prompt, appends the
// optimistic message pair, drives the decoded event stream, and folds every
// event into the Store in arrival order until the turn resolves.
//
// Turn failures never propagate to the caller as errors: transport failures,
// protocol errors, and server error events all resolve the turn by replacing
// the assistant message content with an "Error: ..." indicator, so the UI has
// one rendering path for any non-cancellation failure. Send returns an error
// only when the turn is rejected up front (ErrBusy, ErrValidation).
type Session struct {
	mu     sync.Mutex
	state  SessionState
	cancel context.CancelFunc

	store    *Store
	streamer Streamer
	uploader Uploader
	convs    ConversationService
	logger   *zap.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession creates a Session bound to the given store and backend surfaces.
func NewSession(store *Store, streamer Streamer, uploader Uploader, convs ConversationService, opts ...SessionOption) *Session {
	s := &Session{
		store:    store,
		streamer: streamer,
		uploader: uploader,
		convs:    convs,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SendOption configures a single Send invocation.
type SendOption func(*sendConfig)

type sendConfig struct {
	onEvent func(Event)
}

// WithEventHandler sets a callback invoked after each stream event has been
// applied to the store. If nil or not set, events are folded silently.
func WithEventHandler(h func(Event)) SendOption {
	return func(c *sendConfig) { c.onEvent = h }
}

// Send runs one turn: optimistic append, best-effort attachment upload,
// stream open, and event folding until a terminal outcome. It blocks until
// the turn resolves and is safe to call from a goroutine other than the one
// reading the store.
//
// Send is rejected with ErrBusy while a turn is in flight. The UI is
// expected to disable input, but the machine defends the invariant itself.
func (s *Session) Send(ctx context.Context, prompt string, files []string, opts ...SendOption) error {
	var cfg sendConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	req := TurnRequest{Message: prompt}
	if err := req.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateSending || s.state == StateStreaming {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = StateSending
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer s.finishTurn(cancel)

	// Optimistic append before any I/O: the UI reflects the input with zero
	// latency regardless of network state.
	userID := uuid.NewString()
	assistantID := uuid.NewString()
	now := time.Now()
	s.store.AppendMessage(Message{ID: userID, Role: RoleUser, Content: prompt, Timestamp: now})
	s.store.AppendMessage(Message{ID: assistantID, Role: RoleAssistant, Timestamp: now, Streaming: true})

	if atts := s.uploadAttachments(ctx, files); len(atts) > 0 {
		s.store.SetAttachments(userID, atts)
		for _, a := range atts {
			req.Attachments = append(req.Attachments, a.ID)
		}
	}

	// Forward the conversation id only when the known set vouches for it; a
	// stale id is omitted so the server creates a fresh conversation instead
	// of failing on one it no longer recognizes.
	newConversation := true
	if id, ok := s.store.ActiveConversation(); ok && s.store.KnowsConversation(id) {
		req.ConversationID = id
		newConversation = false
	}

	stream, err := s.streamer.OpenTurn(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return s.resolveCancelled(assistantID)
		}
		return s.resolveFailed(assistantID, err)
	}
	defer stream.Close()

	s.setState(StateStreaming)

	for {
		evt, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// The decoder guarantees a terminal event; a bare EOF means
				// the connection dropped mid-stream.
				return s.resolveFailed(assistantID, errors.New("stream ended before terminal event"))
			}
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return s.resolveCancelled(assistantID)
			}
			return s.resolveFailed(assistantID, err)
		}

		// An event that raced a fired cancellation is discarded; after
		// cancellation the only permitted mutation is the cancellation's own
		// finalization.
		if ctx.Err() != nil {
			return s.resolveCancelled(assistantID)
		}

		switch e := evt.(type) {
		case EventContent:
			s.store.AppendContent(assistantID, e.Text)
		case EventMetadata:
			s.store.SetMetadata(assistantID, e.Metadata)
		case EventDone:
			s.resolveCompleted(ctx, assistantID, e, newConversation)
		case EventError:
			s.store.FailMessage(assistantID, "Error: "+e.Message)
			s.setState(StateErrored)
		}

		if cfg.onEvent != nil {
			cfg.onEvent(evt)
		}

		if s.State().Terminal() {
			return nil
		}
	}
}

// Cancel aborts the in-flight stream. It is a no-op outside the Streaming
// state. Partial content already appended to the assistant message is
// preserved; cancellation is not an error.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// finishTurn releases the turn's cancellation handle. The terminal state is
// left in place for observation; it doubles as Idle for admission control.
func (s *Session) finishTurn(cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()
}

func (s *Session) resolveCompleted(ctx context.Context, assistantID string, e EventDone, newConversation bool) {
	s.store.FinalizeMessage(assistantID, e.MessageID)
	if newConversation {
		// The server just created this conversation; adopt its id and
		// refresh the list once so it appears with its real title.
		s.store.AdoptConversation(e.ConversationID)
		if convs, err := s.convs.ListConversations(ctx); err != nil {
			s.logger.Warn("conversation list refresh failed", zap.Error(err))
		} else {
			s.store.ReplaceConversations(convs)
		}
	}
	s.setState(StateCompleted)
}

func (s *Session) resolveFailed(assistantID string, err error) error {
	s.logger.Warn("turn failed", zap.Error(err))
	s.store.FailMessage(assistantID, fmt.Sprintf("Error: %v", err))
	s.setState(StateErrored)
	return nil
}

func (s *Session) resolveCancelled(assistantID string) error {
	s.store.StopStreaming(assistantID)
	s.setState(StateCancelled)
	return nil
}

// uploadAttachments uploads the given files concurrently, best effort. A
// failed upload is logged and omitted; it never blocks the other files or the
// text send. Result order follows the input order.
func (s *Session) uploadAttachments(ctx context.Context, files []string) []Attachment {
	if len(files) == 0 {
		return nil
	}
	results := make([]*Attachment, len(files))
	var g errgroup.Group
	for i, path := range files {
		g.Go(func() error {
			att, err := s.uploader.UploadFile(ctx, path)
			if err != nil {
				s.logger.Warn("attachment upload failed", zap.String("file", path), zap.Error(err))
				return nil
			}
			results[i] = &att
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
	var atts []Attachment
	for _, r := range results {
		if r != nil {
			atts = append(atts, *r)
		}
	}
	return atts
}
