package askdb

// Event is a sealed interface representing a decoded streaming event.
// Events are purely semantic. Transport failures come from the stream's
// Next() error return, not from events; protocol errors are surfaced as
// synthetic EventError values so a malformed frame never crashes the
// consumer. The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// EventContent carries a text fragment to append to the streaming assistant
// message. Fragments may be arbitrarily small and must be concatenated in
// arrival order, byte for byte.
type EventContent struct {
	Text string
}

func (EventContent) event() {}

// EventMetadata carries the structured result object produced by the server's
// query pipeline. At most one is expected per turn, at or near the end of the
// stream.
type EventMetadata struct {
	Metadata QueryMetadata
}

func (EventMetadata) event() {}

// EventDone is the terminal success signal. It carries the server-assigned
// conversation and message ids that replace the client's temporary ones.
type EventDone struct {
	ConversationID string
	MessageID      string
}

func (EventDone) event() {}

// EventError is the terminal failure signal with a human-readable message.
type EventError struct {
	Message string
}

func (EventError) event() {}

// Interface compliance checks.
var (
	_ Event = EventContent{}
	_ Event = EventMetadata{}
	_ Event = EventDone{}
	_ Event = EventError{}
)
