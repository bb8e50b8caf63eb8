package rentaly

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError is a failed request/response exchange.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error (status %d): %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// Envelope is the JSON wrapper every API response uses.
type Envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Pagination *Pagination     `json:"pagination,omitempty"`
	Message    string          `json:"message,omitempty"`
	Code       string          `json:"code,omitempty"`
}

// Decode unmarshals the Data field into v.
func (e *Envelope) Decode(v any) error {
	if e.Data == nil {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Pagination describes one page of a list response.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ============================================================================
// Contact Types
// ============================================================================

// ContactStatus is the lifecycle state of a conversation.
type ContactStatus string

const (
	StatusPending    ContactStatus = "pending"
	StatusInProgress ContactStatus = "in-progress"
	StatusResolved   ContactStatus = "resolved"
	StatusClosed     ContactStatus = "closed"
)

// Valid reports whether s is a known status.
func (s ContactStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Priority ranks a conversation.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// SenderKind tags who wrote a response.
type SenderKind string

const (
	SentByAdmin SenderKind = "admin"
	SentByUser  SenderKind = "user"
)

// Response is one message in a conversation thread.
type Response struct {
	ID         string     `json:"_id,omitempty"`
	Message    string     `json:"message"`
	SentBy     SenderKind `json:"sentBy"`
	SenderName string     `json:"senderName,omitempty"`
	SentAt     time.Time  `json:"sentAt"`
	IsRead     bool       `json:"isRead,omitempty"`

	// ClientID and Pending are local to the optimistic overlay.
	ClientID string `json:"-"`
	Pending  bool   `json:"-"`
}

// Contact is a support conversation.
type Contact struct {
	ID        string        `json:"_id"`
	Name      string        `json:"name,omitempty"`
	Email     string        `json:"email,omitempty"`
	Phone     string        `json:"phone,omitempty"`
	Subject   string        `json:"subject"`
	Message   string        `json:"message"`
	Status    ContactStatus `json:"status"`
	Priority  Priority      `json:"priority,omitempty"`
	Responses []Response    `json:"responses"`
	IsRead    bool          `json:"isRead"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share the response slice.
func (c *Contact) Clone() *Contact {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Responses != nil {
		cp.Responses = append([]Response(nil), c.Responses...)
	}
	return &cp
}

// Closed reports whether the conversation accepts no further responses.
func (c *Contact) Closed() bool {
	return c != nil && c.Status == StatusClosed
}

// ContactList is one page of conversations.
type ContactList struct {
	Contacts   []Contact   `json:"contacts"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// ListOptions filters the conversation list.
type ListOptions struct {
	Status   ContactStatus
	Priority Priority
	Search   string
	Page     int
	Limit    int
}

// CreateContactOptions opens a new conversation.
type CreateContactOptions struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone,omitempty"`
	Subject  string   `json:"subject"`
	Message  string   `json:"message"`
	Priority Priority `json:"priority,omitempty"`
}

// UpdateContactOptions changes conversation metadata. Empty fields are left alone.
type UpdateContactOptions struct {
	Status   ContactStatus `json:"status,omitempty"`
	Priority Priority      `json:"priority,omitempty"`
	Subject  string        `json:"subject,omitempty"`
}

// RespondResult is returned when a response is posted.
type RespondResult struct {
	Contact  *Contact
	Response Response
}
