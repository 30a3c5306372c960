package askdb

// StreamState indicates the current state of a Stream.
type StreamState int

const (
	StreamStateNew       StreamState = iota // Before Next() is ever called.
	StreamStateStreaming                    // Mid-stream, receiving events.
	StreamStateComplete                     // A terminal event was delivered; Next() returns io.EOF.
	StreamStateError                        // Next() returned a non-EOF error (transport failure).
	StreamStateClosed                       // Close() called before a terminal state.
)

// Stream uses a pull-based iterator pattern. Cancellation flows through the
// context passed to Streamer.OpenTurn().
//
// Next() returns the next decoded event, io.EOF after the terminal event, or
// a non-EOF error for transport failures (connection dropped, context
// cancelled). Protocol errors (frames that cannot be decoded) are not
// errors from Next(): they surface as a synthetic terminal EventError so the
// consumer has a single failure path for server- and protocol-level faults.
//
// The stream never buffers the whole response; events are decoded as frames
// arrive.
type Stream interface {
	Next() (Event, error)
	State() StreamState
	Close() error
}
