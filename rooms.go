package rentaly

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// AdminRoom is the identifier of the singleton administrative room.
const AdminRoom = "admin"

const contactRoomPrefix = "contact:"

// ContactRoom returns the room identifier of a conversation.
func ContactRoom(contactID string) string {
	return contactRoomPrefix + contactID
}

// liveness is the read-only view of the connection other components use.
type liveness interface {
	IsConnected() bool
}

// RoomTracker records which rooms the live connection has joined. It never
// queues joins across a disconnect and never rejoins on its own.
type RoomTracker struct {
	conn       liveness
	dispatcher *Dispatcher
	logger     *zap.Logger

	mu    sync.Mutex
	rooms map[string]bool
	sub   Subscription
}

// NewRoomTracker creates a tracker whose membership is dropped whenever the
// connection goes down.
func NewRoomTracker(conn liveness, d *Dispatcher, logger *zap.Logger) *RoomTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &RoomTracker{
		conn:       conn,
		dispatcher: d,
		logger:     logger.Named("rooms"),
		rooms:      make(map[string]bool),
	}
	r.sub = On(d, EventDisconnect, func(info DisconnectInfo) { r.clear(info.Reason) })
	return r
}

// JoinConversation joins the room of one conversation.
func (r *RoomTracker) JoinConversation(ctx context.Context, contactID string) error {
	if strings.TrimSpace(contactID) == "" {
		return invalidInput("join: empty contact id")
	}
	return r.join(ctx, ContactRoom(contactID), eventJoinContactRoom, RoomPayload{ContactID: contactID})
}

// LeaveConversation leaves the room of one conversation.
func (r *RoomTracker) LeaveConversation(ctx context.Context, contactID string) error {
	if strings.TrimSpace(contactID) == "" {
		return invalidInput("leave: empty contact id")
	}
	return r.leave(ctx, ContactRoom(contactID), eventLeaveContactRoom, RoomPayload{ContactID: contactID})
}

// JoinAdminRoom joins the administrative room.
func (r *RoomTracker) JoinAdminRoom(ctx context.Context) error {
	return r.join(ctx, AdminRoom, eventJoinAdminRoom, struct{}{})
}

// LeaveAdminRoom leaves the administrative room.
func (r *RoomTracker) LeaveAdminRoom(ctx context.Context) error {
	return r.leave(ctx, AdminRoom, eventLeaveAdminRoom, struct{}{})
}

func (r *RoomTracker) join(ctx context.Context, room, event string, payload any) error {
	if !r.conn.IsConnected() {
		r.logger.Debug("join skipped, not connected", zap.String("room", room))
		return nil
	}
	r.mu.Lock()
	if r.rooms[room] {
		r.mu.Unlock()
		return nil
	}
	r.rooms[room] = true
	r.mu.Unlock()

	if err := r.dispatcher.Emit(ctx, event, payload); err != nil {
		r.mu.Lock()
		delete(r.rooms, room)
		r.mu.Unlock()
		return err
	}
	r.logger.Debug("joined", zap.String("room", room))
	return nil
}

func (r *RoomTracker) leave(ctx context.Context, room, event string, payload any) error {
	if !r.conn.IsConnected() {
		return nil
	}
	r.mu.Lock()
	if !r.rooms[room] {
		r.mu.Unlock()
		return nil
	}
	delete(r.rooms, room)
	r.mu.Unlock()

	r.logger.Debug("left", zap.String("room", room))
	return r.dispatcher.Emit(ctx, event, payload)
}

// IsJoined reports membership of a room identifier (see ContactRoom and AdminRoom).
func (r *RoomTracker) IsJoined(room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[room]
}

// Rooms returns the joined room identifiers, sorted.
func (r *RoomTracker) Rooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

func (r *RoomTracker) clear(reason DisconnectReason) {
	r.mu.Lock()
	n := len(r.rooms)
	r.rooms = make(map[string]bool)
	r.mu.Unlock()
	if n > 0 {
		r.logger.Debug("membership cleared", zap.Int("rooms", n), zap.String("reason", string(reason)))
	}
}

// Close detaches the tracker from the dispatcher.
func (r *RoomTracker) Close() {
	r.dispatcher.Unsubscribe(r.sub)
	r.clear(ReasonClientClose)
}
