package askdb

import "time"

// Message is a single entry in a conversation's message list.
//
// The ID is client-generated (a temporary uuid) until the server assigns a
// permanent one on stream completion. While Streaming is true the content is
// append-only; once the message reaches a terminal state the content is
// frozen. Metadata is attached at most once, near the end of a stream.
type Message struct {
	ID          string
	Role        Role
	Content     string
	Timestamp   time.Time
	Attachments []Attachment
	Metadata    *QueryMetadata
	Streaming   bool
}

// Attachment describes an uploaded file referenced by a message.
type Attachment struct {
	ID        string
	Name      string
	MediaType string
	Size      int64
}

// QueryMetadata is the structured object the server delivers at the end of a
// successful turn. The client treats it as opaque output of the server's
// query pipeline: it is stored and rendered, never interpreted.
type QueryMetadata struct {
	Model              string
	GeneratedQuery     string
	Columns            []string
	Rows               []map[string]any
	Confidence         float64
	ExecutionTimeMS    float64
	Warnings           []string
	NeedsClarification bool
}
