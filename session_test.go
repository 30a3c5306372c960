package askdb_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/askdb/askdb"
	"github.com/askdb/askdb/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func listerReturning(convs []askdb.Conversation, calls *atomic.Int32) *mock.ConversationService {
	return &mock.ConversationService{
		ListConversationsFn: func(ctx context.Context) ([]askdb.Conversation, error) {
			if calls != nil {
				calls.Add(1)
			}
			return convs, nil
		},
	}
}

func TestSession_OptimisticAppendBeforeNetwork(t *testing.T) {
	t.Parallel()

	store := askdb.NewStore()
	var msgsAtOpen int
	streamer := &mock.Streamer{
		OpenTurnFn: func(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error) {
			msgsAtOpen = len(store.Messages())
			return mock.EventStream(askdb.EventDone{ConversationID: "c1", MessageID: "m1"}), nil
		},
	}
	sess := askdb.NewSession(store, streamer, nil, listerReturning(conversations("c1"), nil))

	err := sess.Send(context.Background(), "show me sales", nil)

	require.NoError(t, err)
	assert.Equal(t, 2, msgsAtOpen, "user and assistant placeholder must exist before the stream opens")
	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, askdb.RoleUser, msgs[0].Role)
	assert.Equal(t, "show me sales", msgs[0].Content)
	assert.Equal(t, askdb.RoleAssistant, msgs[1].Role)
	assert.Equal(t, askdb.StateCompleted, sess.State())
}

func TestSession_ContentConcatenation(t *testing.T) {
	t.Parallel()

	store := askdb.NewStore()
	streamer := &mock.Streamer{
		OpenTurnFn: func(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error) {
			return mock.EventStream(
				askdb.EventContent{Text: "Hel"},
				askdb.EventContent{Text: "lo wor"},
				askdb.EventContent{Text: "ld"},
				askdb.EventDone{ConversationID: "c1", MessageID: "m1"},
			), nil
		},
	}
	sess := askdb.NewSession(store, streamer, nil, listerReturning(conversations("c1"), nil))

	var seen []askdb.Event
	err := sess.Send(context.Background(), "hi", nil, askdb.WithEventHandler(func(e askdb.Event) {
		seen = append(seen, e)
	}))

	require.NoError(t, err)
	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello world", msgs[1].Content)
	assert.False(t, msgs[1].Streaming)
	assert.Equal(t, "m1", msgs[1].ID)
	assert.Len(t, seen, 4)
}

func TestSession_MetadataAttached(t *testing.T) {
	t.Parallel()

	store := askdb.NewStore()
	md := askdb.QueryMetadata{
		Model:           "sql-coder",
		GeneratedQuery:  "SELECT region, SUM(amount) FROM sales GROUP BY region",
		Columns:         []string{"region", "total"},
		Rows:            []map[string]any{{"region": "north", "total": 42.0}},
		Confidence:      0.87,
		ExecutionTimeMS: 12,
	}
	streamer := &mock.Streamer{
		OpenTurnFn: func(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error) {
			return mock.EventStream(
				askdb.EventContent{Text: "Here are your sales."},
				askdb.EventMetadata{Metadata: md},
				askdb.EventDone{ConversationID: "c1", MessageID: "m1"},
			), nil
		},
	}
	sess := askdb.NewSession(store, streamer, nil, listerReturning(conversations("c1"), nil))

	require.NoError(t, sess.Send(context.Background(), "sales by region", nil))

	got := store.Messages()[1].Metadata
	require.NotNil(t, got)
	assert.Equal(t, md.GeneratedQuery, got.GeneratedQuery)
	assert.Equal(t, md.Confidence, got.Confidence)
}

func TestSession_CancelPreservesPartialContent(t *testing.T) {
	t.Parallel()

	store := askdb.NewStore()
	var streamCtx context.Context
	streamer := &mock.Streamer{
		OpenTurnFn: func(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error) {
			streamCtx = ctx
			delivered := false
			return &mock.Stream{
				NextFn: func() (askdb.Event, error) {
					if !delivered {
						delivered = true
						return askdb.EventContent{Text: "Hello wor"}, nil
					}
					<-streamCtx.Done()
					return nil, context.Canceled
				},
			}, nil
		},
	}
	sess := askdb.NewSession(store, streamer, nil, listerReturning(nil, nil))

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Send(context.Background(), "hi", nil) }()

	require.Eventually(t, func() bool {
		msgs := store.Messages()
		return len(msgs) == 2 && msgs[1].Content == "Hello wor"
	}, 2*time.Second, 5*time.Millisecond)

	sess.Cancel()
	require.NoError(t, <-errCh)

	msg := store.Messages()[1]
	assert.Equal(t, "Hello wor", msg.Content, "cancellation must not rewrite accumulated content")
	assert.False(t, msg.Streaming)
	assert.Equal(t, askdb.StateCancelled, sess.State())
}

func TestSession_CancelOutsideStreamingIsNoop(t *testing.T) {
	t.Parallel()

	store := askdb.NewStore()
	sess := askdb.NewSession(store, &mock.Streamer{}, nil, nil)

	sess.Cancel()

	assert.Equal(t, askdb.StateIdle, sess.State())
	assert.Empty(t, store.Messages())
}

func TestSession_SendWhileBusyIsRejected(t *testing.T) {
	t.Parallel()

	store := askdb.NewStore()
	block := make(chan struct{})
	var opens atomic.Int32
	streamer := &mock.Streamer{
		OpenTurnFn: func(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error) {
			opens.Add(1)
			delivered := false
			return &mock.Stream{
				NextFn: func() (askdb.Event, error) {
					if !delivered {
						delivered = true
						<-block
						return askdb.EventDone{ConversationID: "c1", MessageID: "m1"}, nil
					}
					return nil, io.EOF
				},
			}, nil
		},
	}
	sess := askdb.NewSession(store, streamer, nil, listerReturning(conversations("c1"), nil))

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Send(context.Background(), "first", nil) }()

	require.Eventually(t, func() bool {
		return sess.State() == askdb.StateStreaming
	}, 2*time.Second, 5*time.Millisecond)

	err := sess.Send(context.Background(), "second", nil)
	assert.ErrorIs(t, err, askdb.ErrBusy)
	assert.Len(t, store.Messages(), 2, "rejected send must not touch the message list")

	close(block)
	require.NoError(t, <-errCh)
	assert.Equal(t, int32(1), opens.Load())
}

func TestSession_ErrorEventReplacesContent(t *testing.T) {
	t.Parallel()

	store := askdb.NewStore()
	streamer := &mock.Streamer{
		OpenTurnFn: func(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error) {
			return mock.EventStream(
				askdb.EventContent{Text: "partial output"},
				askdb.EventError{Message: "query timeout"},
			), nil
		},
	}
	sess := askdb.NewSession(store, streamer, nil, nil)

	require.NoError(t, sess.Send(context.Background(), "slow question", nil))

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "slow question", msgs[0].Content, "user message must be untouched")
	assert.Contains(t, msgs[1].Content, "query timeout")
	assert.True(t, len(msgs[1].Content) > 0 && msgs[1].Content[:7] == "Error: ")
	assert.False(t, msgs[1].Streaming)
	assert.Equal(t, askdb.StateErrored, sess.State())
}

func TestSession_TransportFailure(t *testing.T) {
	t.Parallel()

	store := askdb.NewStore()
	streamer := &mock.Streamer{
		OpenTurnFn: func(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error) {
			return nil, errors.New("connection refused")
		},
	}
	sess := askdb.NewSession(store, streamer, nil, nil)

	require.NoError(t, sess.Send(context.Background(), "hi", nil))

	msg := store.Messages()[1]
	assert.Contains(t, msg.Content, "connection refused")
	assert.False(t, msg.Streaming)
	assert.Equal(t, askdb.StateErrored, sess.State())
}

func TestSession_StreamEndsBeforeTerminalEvent(t *testing.T) {
	t.Parallel()

	store := askdb.NewStore()
	streamer := &mock.Streamer{
		OpenTurnFn: func(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error) {
			return mock.EventStream(askdb.EventContent{Text: "Hel"}), nil
		},
	}
	sess := askdb.NewSession(store, streamer, nil, nil)

	require.NoError(t, sess.Send(context.Background(), "hi", nil))

	msg := store.Messages()[1]
	assert.Contains(t, msg.Content, "stream ended before terminal event")
	assert.Equal(t, askdb.StateErrored, sess.State())
}

func TestSession_DoneAdoptsNewConversation(t *testing.T) {
	t.Parallel()

	store := askdb.NewStore()
	var listCalls atomic.Int32
	streamer := &mock.Streamer{
		OpenTurnFn: func(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error) {
			assert.Empty(t, req.ConversationID)
			return mock.EventStream(
				askdb.EventContent{Text: "hello"},
				askdb.EventDone{ConversationID: "c-9", MessageID: "m-1"},
			), nil
		},
	}
	sess := askdb.NewSession(store, streamer, nil, listerReturning(conversations("c-9"), &listCalls))

	require.NoError(t, sess.Send(context.Background(), "hi", nil))

	id, ok := store.ActiveConversation()
	require.True(t, ok)
	assert.Equal(t, "c-9", id)
	assert.Equal(t, int32(1), listCalls.Load(), "conversation list refresh must trigger exactly once")
	assert.Equal(t, "m-1", store.Messages()[1].ID)
}

func TestSession_KnownConversationIDForwarded(t *testing.T) {
	t.Parallel()

	store := askdb.NewStore()
	store.ReplaceConversations(conversations("c1"))
	store.SelectConversation("c1")

	var captured askdb.TurnRequest
	streamer := &mock.Streamer{
		OpenTurnFn: func(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error) {
			captured = req
			return mock.EventStream(askdb.EventDone{ConversationID: "c1", MessageID: "m1"}), nil
		},
	}
	// The lister panics when called: a turn against a known conversation must
	// not refresh the list.
	sess := askdb.NewSession(store, streamer, nil, &mock.ConversationService{})

	require.NoError(t, sess.Send(context.Background(), "hi", nil))

	assert.Equal(t, "c1", captured.ConversationID)
}

func TestSession_StaleConversationIDOmitted(t *testing.T) {
	t.Parallel()

	store := askdb.NewStore()
	// Active id no longer present in the known set, e.g. after a backend
	// restart wiped history.
	store.AdoptConversation("stale")

	var captured askdb.TurnRequest
	streamer := &mock.Streamer{
		OpenTurnFn: func(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error) {
			captured = req
			return mock.EventStream(askdb.EventDone{ConversationID: "c-new", MessageID: "m1"}), nil
		},
	}
	sess := askdb.NewSession(store, streamer, nil, listerReturning(conversations("c-new"), nil))

	require.NoError(t, sess.Send(context.Background(), "hi", nil))

	assert.Empty(t, captured.ConversationID, "stale id must not be sent to the server")
	id, _ := store.ActiveConversation()
	assert.Equal(t, "c-new", id)
}

func TestSession_AttachmentFailureDoesNotBlockSend(t *testing.T) {
	t.Parallel()

	store := askdb.NewStore()
	uploader := &mock.Uploader{
		UploadFileFn: func(ctx context.Context, path string) (askdb.Attachment, error) {
			if path == "b.csv" {
				return askdb.Attachment{}, errors.New("upload rejected")
			}
			return askdb.Attachment{ID: "f1", Name: path}, nil
		},
	}
	var captured askdb.TurnRequest
	streamer := &mock.Streamer{
		OpenTurnFn: func(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error) {
			captured = req
			return mock.EventStream(askdb.EventDone{ConversationID: "c1", MessageID: "m1"}), nil
		},
	}
	sess := askdb.NewSession(store, streamer, uploader, listerReturning(conversations("c1"), nil))

	require.NoError(t, sess.Send(context.Background(), "hi", []string{"a.csv", "b.csv"}))

	assert.Equal(t, []string{"f1"}, captured.Attachments)
	require.Len(t, store.Messages()[0].Attachments, 1)
	assert.Equal(t, "f1", store.Messages()[0].Attachments[0].ID)
	assert.Equal(t, askdb.StateCompleted, sess.State())
}

func TestSession_SendRejectsEmptyPrompt(t *testing.T) {
	t.Parallel()

	store := askdb.NewStore()
	sess := askdb.NewSession(store, &mock.Streamer{}, nil, nil)

	err := sess.Send(context.Background(), "   ", nil)

	assert.ErrorIs(t, err, askdb.ErrValidation)
	assert.Empty(t, store.Messages())
	assert.Equal(t, askdb.StateIdle, sess.State())
}

func TestSession_SendAllowedFromTerminalState(t *testing.T) {
	t.Parallel()

	store := askdb.NewStore()
	streamer := &mock.Streamer{
		OpenTurnFn: func(ctx context.Context, req askdb.TurnRequest) (askdb.Stream, error) {
			return mock.EventStream(askdb.EventError{Message: "boom"}), nil
		},
	}
	sess := askdb.NewSession(store, streamer, nil, nil)

	require.NoError(t, sess.Send(context.Background(), "first", nil))
	require.Equal(t, askdb.StateErrored, sess.State())

	// Terminal states double as Idle: the next send is admitted.
	require.NoError(t, sess.Send(context.Background(), "second", nil))
	assert.Len(t, store.Messages(), 4)
}
