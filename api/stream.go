package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/askdb/askdb"
)

// stream implements [askdb.Stream] by parsing SSE frames from an HTTP
// response body.
//
// Terminal accounting: a done or error event (including a synthetic error
// produced for an undecodable frame) moves the stream to
// StreamStateComplete, after which Next() returns io.EOF. Transport failures
// (connection dropped, context cancelled) move it to StreamStateError and are
// returned from Next() directly.
type stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	ctx     context.Context
	state   askdb.StreamState
	err     error // terminal transport error, if any
}

// Interface compliance check.
var _ askdb.Stream = (*stream)(nil)

func newStream(ctx context.Context, body io.ReadCloser) *stream {
	return &stream{
		body:    body,
		scanner: bufio.NewScanner(body),
		ctx:     ctx,
		state:   askdb.StreamStateNew,
	}
}

// Next reads the next decoded event from the stream. It returns io.EOF after
// the terminal event. Frames split across network reads are buffered until a
// complete frame is available; a frame that cannot be decoded yields a
// synthetic terminal [askdb.EventError] rather than an error return.
func (s *stream) Next() (askdb.Event, error) {
	switch s.state {
	case askdb.StreamStateComplete:
		return nil, io.EOF
	case askdb.StreamStateError:
		return nil, s.err
	case askdb.StreamStateClosed:
		return nil, fmt.Errorf("api: %w", askdb.ErrStreamClosed)
	}

	data, err := s.readFrame()
	if err != nil {
		return nil, s.terminate(err)
	}
	s.state = askdb.StreamStateStreaming

	var evt apiEvent
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return s.protocolError(fmt.Sprintf("malformed stream frame: %v", err)), nil
	}

	switch evt.Type {
	case "content":
		return askdb.EventContent{Text: evt.Content}, nil
	case "metadata":
		if evt.Metadata == nil {
			return s.protocolError("metadata event without payload"), nil
		}
		return askdb.EventMetadata{Metadata: evt.Metadata.toDomain()}, nil
	case "done":
		s.state = askdb.StreamStateComplete
		return askdb.EventDone{ConversationID: evt.ConversationID, MessageID: evt.MessageID}, nil
	case "error":
		s.state = askdb.StreamStateComplete
		return askdb.EventError{Message: evt.Error}, nil
	default:
		return s.protocolError(fmt.Sprintf("unknown event type %q", evt.Type)), nil
	}
}

// State returns the current stream state.
func (s *stream) State() askdb.StreamState {
	return s.state
}

// Close closes the underlying HTTP response body.
func (s *stream) Close() error {
	if s.state != askdb.StreamStateComplete && s.state != askdb.StreamStateError {
		s.state = askdb.StreamStateClosed
	}
	return s.body.Close()
}

// protocolError converts an undecodable frame into a synthetic terminal
// error event so the consumer has a single failure path.
func (s *stream) protocolError(msg string) askdb.Event {
	s.state = askdb.StreamStateComplete
	return askdb.EventError{Message: msg}
}

// terminate records a terminal transport error. A raw EOF means the server
// closed the connection before a terminal event.
func (s *stream) terminate(err error) error {
	s.state = askdb.StreamStateError
	switch {
	case s.ctx.Err() != nil:
		s.err = context.Canceled
	case err == io.EOF:
		s.err = io.EOF
	default:
		s.err = fmt.Errorf("api: %w", err)
	}
	return s.err
}

// readFrame reads lines until a complete SSE frame is assembled, returning
// the joined data payload. The line scanner buffers partial lines across
// network reads, so frame boundaries are independent of packet boundaries.
func (s *stream) readFrame() (string, error) {
	var dataBuf strings.Builder

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			// Empty line signals end of frame.
			if dataBuf.Len() > 0 {
				return dataBuf.String(), nil
			}
			continue
		}

		if data, ok := strings.CutPrefix(line, "data: "); ok {
			if dataBuf.Len() > 0 {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(data)
		}
		// Ignore comments (lines starting with ':') and unknown fields.
	}

	if err := s.scanner.Err(); err != nil {
		return "", err
	}

	// Scanner exhausted without error = EOF.
	if dataBuf.Len() > 0 {
		return dataBuf.String(), nil
	}
	return "", io.EOF
}
