package rentaly

import (
	"encoding/json"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Channel event names.
const (
	eventJoinContactRoom  = "join_contact_room"
	eventLeaveContactRoom = "leave_contact_room"
	eventJoinAdminRoom    = "join_admin_room"
	eventLeaveAdminRoom   = "leave_admin_room"

	eventUserTyping         = "user_typing"
	eventUserStoppedTyping  = "user_stopped_typing"
	eventAdminTyping        = "admin_typing"
	eventAdminStoppedTyping = "admin_stopped_typing"

	eventNewContactMessage = "new_contact_message"
	eventAdminResponse     = "admin_response"
	eventUserResponse      = "user_response"
	eventStatusUpdate      = "status_update"
	eventStatusChange      = "status_change"
	eventMarkAsRead        = "mark_as_read"
	eventMarkMessageRead   = "mark_message_read"
	eventMessageDeleted    = "message_deleted"

	eventAuthenticated = "authenticated"
	eventError         = "error"
)

// Local lifecycle signal names. These never travel on the wire.
const (
	eventConnect          = "connect"
	eventDisconnect       = "disconnect"
	eventConnectError     = "connect_error"
	eventReconnectAttempt = "reconnect_attempt"
	eventReconnect        = "reconnect"
	eventReconnectFailed  = "reconnect_failed"
)

// RoomPayload addresses a contact room.
type RoomPayload struct {
	ContactID string `json:"contactId"`
}

// TypingPayload is sent and received for typing indicators. UserID and
// UserName are filled by the server when relaying.
type TypingPayload struct {
	ContactID string `json:"contactId"`
	UserID    string `json:"userId,omitempty"`
	UserName  string `json:"userName,omitempty"`
}

// ResponsePayload carries a reply pushed on admin_response / user_response.
// Response is the full stored record when the server includes it.
type ResponsePayload struct {
	ContactID string         `json:"contactId"`
	Message   string         `json:"message"`
	Response  map[string]any `json:"response,omitempty"`
	SentBy    string         `json:"sentBy,omitempty"`
}

// StatusPayload is pushed when a conversation changes status or priority.
type StatusPayload struct {
	ContactID string        `json:"contactId"`
	NewStatus ContactStatus `json:"newStatus"`
	Priority  Priority      `json:"priority,omitempty"`
}

// ReadPayload marks a response as read.
type ReadPayload struct {
	ContactID  string `json:"contactId"`
	ResponseID string `json:"responseId"`
}

// MessageDeletedPayload is pushed when a message is removed server side.
type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	ContactID string `json:"contactId,omitempty"`
}

// AuthenticatedPayload is the server's handshake acknowledgement.
type AuthenticatedPayload struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
}

// ServerErrorPayload is sent by the server when it rejects a frame.
type ServerErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// DisconnectInfo accompanies the disconnect lifecycle signal.
type DisconnectInfo struct {
	Reason DisconnectReason
	Err    error
}

// ConnectErrorInfo accompanies connect_error.
type ConnectErrorInfo struct {
	Attempt int
	Err     error
}

// ReconnectAttemptInfo is published before each scheduled reconnect.
type ReconnectAttemptInfo struct {
	Attempt int
	Delay   time.Duration
}

// ReconnectInfo is published after a reconnect succeeds.
type ReconnectInfo struct {
	Attempts int
}

// ReconnectFailedInfo is published once reconnects are exhausted.
type ReconnectFailedInfo struct {
	Attempts int
	Err      error
}

// ConnectedInfo is published on every successful handshake.
type ConnectedInfo struct {
	UserID string
}

// Typed channel events.
var (
	EventJoinContactRoom    = NewEvent[RoomPayload](eventJoinContactRoom)
	EventLeaveContactRoom   = NewEvent[RoomPayload](eventLeaveContactRoom)
	EventJoinAdminRoom      = NewEvent[struct{}](eventJoinAdminRoom)
	EventLeaveAdminRoom     = NewEvent[struct{}](eventLeaveAdminRoom)
	EventUserTyping         = NewEvent[TypingPayload](eventUserTyping)
	EventUserStoppedTyping  = NewEvent[TypingPayload](eventUserStoppedTyping)
	EventAdminTyping        = NewEvent[TypingPayload](eventAdminTyping)
	EventAdminStoppedTyping = NewEvent[TypingPayload](eventAdminStoppedTyping)
	EventNewContactMessage  = NewEvent[Contact](eventNewContactMessage)
	EventAdminResponse      = NewEvent[ResponsePayload](eventAdminResponse)
	EventUserResponse       = NewEvent[ResponsePayload](eventUserResponse)
	EventStatusUpdate       = NewEvent[StatusPayload](eventStatusUpdate)
	EventStatusChange       = NewEvent[StatusPayload](eventStatusChange)
	EventMarkAsRead         = NewEvent[ReadPayload](eventMarkAsRead)
	EventMarkMessageRead    = NewEvent[ReadPayload](eventMarkMessageRead)
	EventMessageDeleted     = NewEvent[MessageDeletedPayload](eventMessageDeleted)
	EventServerError        = NewEvent[ServerErrorPayload](eventError)
)

// Typed lifecycle events.
var (
	EventConnect          = NewEvent[ConnectedInfo](eventConnect)
	EventDisconnect       = NewEvent[DisconnectInfo](eventDisconnect)
	EventConnectError     = NewEvent[ConnectErrorInfo](eventConnectError)
	EventReconnectAttempt = NewEvent[ReconnectAttemptInfo](eventReconnectAttempt)
	EventReconnect        = NewEvent[ReconnectInfo](eventReconnect)
	EventReconnectFailed  = NewEvent[ReconnectFailedInfo](eventReconnectFailed)
)

// Frame is the wire envelope of every channel message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeResponse builds the Response a push event describes. The embedded
// record wins when present; otherwise one is synthesized from the message.
func (p ResponsePayload) DecodeResponse(defaultSender SenderKind, receivedAt time.Time) (Response, error) {
	resp := Response{
		Message: p.Message,
		SentBy:  defaultSender,
		SentAt:  receivedAt,
	}
	if p.SentBy != "" {
		resp.SentBy = SenderKind(p.SentBy)
	}
	if len(p.Response) == 0 {
		return resp, nil
	}

	var decoded Response
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &decoded,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return resp, err
	}
	if err := dec.Decode(p.Response); err != nil {
		return resp, WrapError(ErrorDecode, "response record", err)
	}
	if decoded.ID == "" {
		if id, ok := p.Response["id"].(string); ok {
			decoded.ID = id
		}
	}
	if decoded.Message == "" {
		decoded.Message = resp.Message
	}
	if decoded.SentBy == "" {
		decoded.SentBy = resp.SentBy
	}
	if decoded.SentAt.IsZero() {
		decoded.SentAt = resp.SentAt
	}
	return decoded, nil
}
