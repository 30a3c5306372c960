// Package api implements [askdb.Streamer], [askdb.Uploader], and
// [askdb.ConversationService] for the assistant backend's HTTP API.
//
// The streaming turn endpoint is consumed via SSE and decoded into semantic
// events through the pull-based [askdb.Stream] interface; the conversation
// and file endpoints are plain JSON CRUD.
package api

import (
	"time"

	"github.com/askdb/askdb"
)

const (
	defaultBaseURL    = "http://localhost:8000"
	conversationsPath = "/conversations"
	streamPath        = "/conversations/stream"
	filesPath         = "/files"
)

// apiTurnRequest is the JSON body sent to the streaming turn endpoint.
type apiTurnRequest struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Attachments    []string `json:"attachments,omitempty"`
}

// apiEvent is one decoded stream frame. Type discriminates which of the
// remaining fields are populated.
type apiEvent struct {
	Type string `json:"type"`

	// content
	Content string `json:"content,omitempty"`

	// metadata
	Metadata *apiMetadata `json:"metadata,omitempty"`

	// done
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

type apiMetadata struct {
	Model              string           `json:"model,omitempty"`
	GeneratedQuery     string           `json:"generated_query,omitempty"`
	Columns            []string         `json:"columns,omitempty"`
	Rows               []map[string]any `json:"rows,omitempty"`
	Confidence         float64          `json:"confidence,omitempty"`
	ExecutionTimeMS    float64          `json:"execution_time_ms,omitempty"`
	Warnings           []string         `json:"warnings,omitempty"`
	NeedsClarification bool             `json:"needs_clarification,omitempty"`
}

func (m apiMetadata) toDomain() askdb.QueryMetadata {
	return askdb.QueryMetadata{
		Model:              m.Model,
		GeneratedQuery:     m.GeneratedQuery,
		Columns:            m.Columns,
		Rows:               m.Rows,
		Confidence:         m.Confidence,
		ExecutionTimeMS:    m.ExecutionTimeMS,
		Warnings:           m.Warnings,
		NeedsClarification: m.NeedsClarification,
	}
}

type apiConversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

func (c apiConversation) toDomain() askdb.Conversation {
	return askdb.Conversation{
		ID:           c.ID,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: c.MessageCount,
	}
}

type apiMessage struct {
	ID          string          `json:"id"`
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	Timestamp   time.Time       `json:"timestamp"`
	Attachments []apiAttachment `json:"attachments,omitempty"`
	Metadata    *apiMetadata    `json:"metadata,omitempty"`
}

func (m apiMessage) toDomain() askdb.Message {
	msg := askdb.Message{
		ID:        m.ID,
		Role:      askdb.Role(m.Role),
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, a.toDomain())
	}
	if m.Metadata != nil {
		md := m.Metadata.toDomain()
		msg.Metadata = &md
	}
	return msg
}

type apiAttachment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MediaType string `json:"media_type,omitempty"`
	Size      int64  `json:"size,omitempty"`
}

func (a apiAttachment) toDomain() askdb.Attachment {
	return askdb.Attachment{ID: a.ID, Name: a.Name, MediaType: a.MediaType, Size: a.Size}
}

// apiConversationDetail is the GET /conversations/{id} response.
type apiConversationDetail struct {
	apiConversation
	Messages []apiMessage `json:"messages"`
}

// apiFileUpload is the POST /files response.
type apiFileUpload struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// apiDeleted is the bulk-delete response.
type apiDeleted struct {
	DeletedCount int `json:"deleted_count"`
}

// apiRename is the PATCH /conversations/{id} request body.
type apiRename struct {
	Title string `json:"title"`
}

// apiError is the JSON error body returned on non-2xx responses.
type apiError struct {
	Error string `json:"error"`
}
