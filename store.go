package rentaly

import (
	"sync"
)

// ConversationStore is the goroutine-safe in-memory model behind the
// reconciler: the open conversation, the summary list and the pending
// overlay of responses not yet confirmed by the server.
type ConversationStore struct {
	mu         sync.RWMutex
	current    *Contact
	list       []Contact
	pagination *Pagination
	pending    map[string][]Response
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		pending: make(map[string][]Response),
	}
}

// ── Detail ─────────────────────────────────────────────

// Current returns a copy of the open conversation with pending responses
// appended, or nil.
func (s *ConversationStore) Current() *Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	c := s.current.Clone()
	c.Responses = append(c.Responses, s.pending[c.ID]...)
	return c
}

// Confirmed returns a copy of the open conversation without the overlay.
func (s *ConversationStore) Confirmed() *Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// SetCurrent replaces the open conversation and mirrors it into the list.
func (s *ConversationStore) SetCurrent(c *Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = c.Clone()
	if c != nil {
		s.mirrorLocked(c)
	}
}

// ── List ───────────────────────────────────────────────

// List returns copies of the summary entries.
func (s *ConversationStore) List() []Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Contact, len(s.list))
	for i := range s.list {
		out[i] = *s.list[i].Clone()
	}
	return out
}

// Pagination returns the paging metadata of the last list fetch.
func (s *ConversationStore) Pagination() *Pagination {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pagination == nil {
		return nil
	}
	p := *s.pagination
	return &p
}

// SetList replaces the summary list.
func (s *ConversationStore) SetList(l *ContactList) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = s.list[:0:0]
	s.pagination = nil
	if l == nil {
		return
	}
	for i := range l.Contacts {
		s.list = append(s.list, *l.Contacts[i].Clone())
	}
	s.pagination = l.Pagination
}

// Prepend inserts a new conversation at the head of the list. It reports
// false when the id is already listed.
func (s *ConversationStore) Prepend(c Contact) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(c.ID) >= 0 {
		return false
	}
	s.list = append([]Contact{*c.Clone()}, s.list...)
	if s.pagination != nil {
		s.pagination.Total++
	}
	return true
}

// Remove drops a conversation from the list and closes it if open.
func (s *ConversationStore) Remove(contactID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(contactID); i >= 0 {
		s.list = append(s.list[:i:i], s.list[i+1:]...)
	}
	if s.current != nil && s.current.ID == contactID {
		s.current = nil
	}
	delete(s.pending, contactID)
}

// ── Mutations applied to detail and list together ──────

// Status returns the last known status of a conversation, from the open
// detail first and the list otherwise.
func (s *ConversationStore) Status(contactID string) (ContactStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current != nil && s.current.ID == contactID {
		return s.current.Status, true
	}
	if i := s.indexLocked(contactID); i >= 0 {
		return s.list[i].Status, true
	}
	return "", false
}

// AppendResponse appends r to the conversation in both views. Closed
// conversations and responses already present by id are left alone; the
// return value reports whether anything was appended.
func (s *ConversationStore) AppendResponse(contactID string, r Response) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied := false
	s.eachLocked(contactID, func(c *Contact) {
		if c.Closed() || hasResponse(c.Responses, r.ID) {
			return
		}
		c.Responses = append(c.Responses, r)
		if r.SentAt.After(c.UpdatedAt) {
			c.UpdatedAt = r.SentAt
		}
		applied = true
	})
	return applied
}

// SetStatus mirrors a status (and optionally priority) change.
func (s *ConversationStore) SetStatus(contactID string, status ContactStatus, priority Priority) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied := false
	s.eachLocked(contactID, func(c *Contact) {
		c.Status = status
		if priority != "" {
			c.Priority = priority
		}
		applied = true
	})
	return applied
}

// RemoveResponse deletes a response by id. An empty contactID searches every
// known conversation.
func (s *ConversationStore) RemoveResponse(contactID, responseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := false
	drop := func(c *Contact) {
		for i := range c.Responses {
			if c.Responses[i].ID == responseID {
				c.Responses = append(c.Responses[:i:i], c.Responses[i+1:]...)
				removed = true
				return
			}
		}
	}
	if contactID != "" {
		s.eachLocked(contactID, drop)
		return removed
	}
	if s.current != nil {
		drop(s.current)
	}
	for i := range s.list {
		drop(&s.list[i])
	}
	return removed
}

// MarkRead flags one response, or the whole conversation when responseID is
// empty, as read.
func (s *ConversationStore) MarkRead(contactID, responseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eachLocked(contactID, func(c *Contact) {
		if responseID == "" {
			c.IsRead = true
			for i := range c.Responses {
				c.Responses[i].IsRead = true
			}
			return
		}
		for i := range c.Responses {
			if c.Responses[i].ID == responseID {
				c.Responses[i].IsRead = true
			}
		}
	})
}

// ── Pending overlay ───────────────────────────────────

// AddPending records an optimistic response keyed by its ClientID.
func (s *ConversationStore) AddPending(contactID string, r Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Pending = true
	s.pending[contactID] = append(s.pending[contactID], r)
}

// PendingCount returns how many responses await confirmation.
func (s *ConversationStore) PendingCount(contactID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending[contactID])
}

// ResolvePending removes the optimistic response clientID. When confirmed is
// non-nil it is appended as the authoritative version.
func (s *ConversationStore) ResolvePending(contactID, clientID string, confirmed *Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.pending[contactID]
	for i := range list {
		if list[i].ClientID == clientID {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.pending, contactID)
	} else {
		s.pending[contactID] = list
	}
	if confirmed == nil {
		return
	}
	r := *confirmed
	r.Pending = false
	r.ClientID = ""
	s.eachLocked(contactID, func(c *Contact) {
		if !hasResponse(c.Responses, r.ID) {
			c.Responses = append(c.Responses, r)
		}
	})
}

// Reset empties the store.
func (s *ConversationStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.list = nil
	s.pagination = nil
	s.pending = make(map[string][]Response)
}

func (s *ConversationStore) eachLocked(contactID string, fn func(*Contact)) {
	if s.current != nil && s.current.ID == contactID {
		fn(s.current)
	}
	if i := s.indexLocked(contactID); i >= 0 {
		fn(&s.list[i])
	}
}

func (s *ConversationStore) mirrorLocked(c *Contact) {
	if i := s.indexLocked(c.ID); i >= 0 {
		s.list[i] = *c.Clone()
	}
}

func (s *ConversationStore) indexLocked(contactID string) int {
	for i := range s.list {
		if s.list[i].ID == contactID {
			return i
		}
	}
	return -1
}

func hasResponse(responses []Response, id string) bool {
	if id == "" {
		return false
	}
	for i := range responses {
		if responses[i].ID == id {
			return true
		}
	}
	return false
}
