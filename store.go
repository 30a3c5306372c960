package askdb

import "sync"

// Store holds the process-wide conversation state: the known conversations,
// the active conversation id, and the message list for the active
// conversation. It is mutated by the Session during a turn and by explicit
// CRUD calls between turns; a mutex keeps those mutations safe across the
// goroutine boundary between the UI loop and a running turn.
//
// Invariants:
//   - message insertion order is the only order; messages are never reordered
//   - at most one message store-wide has Streaming = true
//   - streaming content is append-only; only the explicit error path replaces it
//
// Conversation content is not persisted client-side: the store lives for the
// process and is reloaded from the server on selection.
type Store struct {
	mu            sync.RWMutex
	conversations []Conversation
	activeID      string
	messages      []Message
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Conversations returns a copy of the known conversation list.
func (s *Store) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// ActiveConversation returns the selected conversation id, if any.
func (s *Store) ActiveConversation() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID, s.activeID != ""
}

// Messages returns a copy of the active conversation's message list.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// KnowsConversation reports whether id is in the known conversation set. The
// known set is the only source of truth for whether a previously held id may
// still be sent to the server.
func (s *Store) KnowsConversation(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.knowsLocked(id)
}

func (s *Store) knowsLocked(id string) bool {
	for _, c := range s.conversations {
		if c.ID == id {
			return true
		}
	}
	return false
}

// SelectConversation makes id the active conversation. An id not in the known
// set is treated as stale: the active selection and message list are cleared
// rather than loaded, which defends against ids that survived a backend
// restart.
func (s *Store) SelectConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.knowsLocked(id) {
		s.activeID = ""
		s.messages = nil
		return
	}
	s.activeID = id
	s.messages = nil
}

// AdoptConversation makes id the active conversation without consulting the
// known set. It is reserved for server-confirmed ids, i.e. the conversation
// id delivered by a done event for a freshly created conversation.
func (s *Store) AdoptConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = id
}

// ReplaceConversations swaps in a fresh conversation list. The active
// selection survives only if it is still present in the new list.
func (s *Store) ReplaceConversations(conversations []Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = make([]Conversation, len(conversations))
	copy(s.conversations, conversations)
	if s.activeID != "" && !s.knowsLocked(s.activeID) {
		s.activeID = ""
		s.messages = nil
	}
}

// RemoveConversation drops id from the known set. If it was active, the
// selection and message list are cleared.
func (s *Store) RemoveConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.conversations {
		if c.ID == id {
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			break
		}
	}
	if s.activeID == id {
		s.activeID = ""
		s.messages = nil
	}
}

// UpdateConversationTitle renames a known conversation in place.
func (s *Store) UpdateConversationTitle(id, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			s.conversations[i].Title = title
			return
		}
	}
}

// SetMessages replaces the active message list, e.g. after loading a
// conversation's content from the server.
func (s *Store) SetMessages(messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]Message, len(messages))
	copy(s.messages, messages)
}

// AppendMessage adds a message to the end of the active list. When the new
// message is streaming, any message still marked streaming is frozen first so
// the single-streaming invariant holds even if a caller misbehaves.
func (s *Store) AppendMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Streaming {
		for i := range s.messages {
			s.messages[i].Streaming = false
		}
	}
	s.messages = append(s.messages, msg)
}

// AppendContent appends a fragment to the streaming message with the given
// id. Appends to unknown or already-frozen messages are dropped: content is
// frozen once a message leaves the streaming state.
func (s *Store) AppendContent(id, delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id && s.messages[i].Streaming {
			s.messages[i].Content += delta
			return
		}
	}
}

// SetMetadata attaches the query metadata to the message with the given id.
func (s *Store) SetMetadata(id string, md QueryMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Metadata = &md
			return
		}
	}
}

// SetAttachments records the uploaded attachments on the message with the
// given id.
func (s *Store) SetAttachments(id string, attachments []Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Attachments = attachments
			return
		}
	}
}

// FinalizeMessage freezes the message with the temporary id and maps it to
// the server-assigned id. This is an explicit id-mapping step so the UI never
// observes a half-renamed message.
func (s *Store) FinalizeMessage(tempID, serverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == tempID {
			s.messages[i].ID = serverID
			s.messages[i].Streaming = false
			return
		}
	}
}

// FailMessage replaces the message's content with an error indicator and
// freezes it. This is the only path that rewrites streamed content.
func (s *Store) FailMessage(id, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Content = content
			s.messages[i].Streaming = false
			return
		}
	}
}

// StopStreaming freezes the message with the given id, preserving whatever
// content has accumulated. Used on cancellation, which is not an error.
func (s *Store) StopStreaming(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Streaming = false
			return
		}
	}
}

// ClearAll removes every known conversation, the active selection, and the
// message list, leaving the store in its initial empty state.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = nil
	s.activeID = ""
	s.messages = nil
}
