package rentaly

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationKind classifies a notification.
type NotificationKind string

const (
	KindAdminResponse  NotificationKind = "admin_response"
	KindUserResponse   NotificationKind = "user_response"
	KindStatusChange   NotificationKind = "status_change"
	KindNewMessage     NotificationKind = "new_message"
	KindMessageDeleted NotificationKind = "message_deleted"
)

// Notification is an ephemeral user-visible message.
type Notification struct {
	ID        string
	Kind      NotificationKind
	Title     string
	Message   string
	ContactID string
	CreatedAt time.Time
	Read      bool
}

type notificationEntry struct {
	n     Notification
	timer *Timer
}

// NotificationCenter keeps the visible notifications, newest first. Each one
// is removed automatically after the configured duration unless dismissed
// earlier. Identical events are not deduplicated.
type NotificationCenter struct {
	timers   *TimerGroup
	duration time.Duration
	logger   *zap.Logger
	metrics  *Metrics

	mu       sync.Mutex
	entries  []*notificationEntry
	onChange func([]Notification)

	bound     *Dispatcher
	boundSubs []Subscription
}

// NewNotificationCenter creates an empty center using cfg's clock, duration,
// logger and metrics.
func NewNotificationCenter(cfg Config) *NotificationCenter {
	cfg.defaults()
	return &NotificationCenter{
		timers:   NewTimerGroup(cfg.Clock),
		duration: cfg.NotificationDuration,
		logger:   cfg.Logger.Named("notifications"),
		metrics:  cfg.Metrics,
	}
}

// Notify creates a notification and schedules its removal.
func (c *NotificationCenter) Notify(kind NotificationKind, title, message, contactID string) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     title,
		Message:   message,
		ContactID: contactID,
		CreatedAt: c.timers.Now(),
	}
	e := &notificationEntry{n: n}

	c.mu.Lock()
	c.entries = append([]*notificationEntry{e}, c.entries...)
	e.timer = c.timers.AfterFunc(c.duration, func() { c.expire(e) })
	fn, list := c.changeLocked()
	c.mu.Unlock()

	c.metrics.notificationCreated(kind)
	c.logger.Debug("notification", zap.String("id", n.ID), zap.String("kind", string(kind)), zap.String("contact_id", contactID))
	if fn != nil {
		fn(list)
	}
	return n
}

// Dismiss removes a notification now and cancels its timer. Unknown ids are ignored.
func (c *NotificationCenter) Dismiss(id string) {
	c.mu.Lock()
	removed := false
	for i, e := range c.entries {
		if e.n.ID == id {
			e.timer.Stop()
			c.entries = append(c.entries[:i:i], c.entries[i+1:]...)
			removed = true
			break
		}
	}
	var fn func([]Notification)
	var list []Notification
	if removed {
		fn, list = c.changeLocked()
	}
	c.mu.Unlock()

	if fn != nil {
		fn(list)
	}
}

// DismissAll removes every notification.
func (c *NotificationCenter) DismissAll() {
	c.mu.Lock()
	for _, e := range c.entries {
		e.timer.Stop()
	}
	had := len(c.entries) > 0
	c.entries = nil
	var fn func([]Notification)
	if had {
		fn, _ = c.changeLocked()
	}
	c.mu.Unlock()

	if fn != nil {
		fn(nil)
	}
}

// MarkRead flags a notification as read without removing it.
func (c *NotificationCenter) MarkRead(id string) {
	c.mu.Lock()
	var fn func([]Notification)
	var list []Notification
	for _, e := range c.entries {
		if e.n.ID == id && !e.n.Read {
			e.n.Read = true
			fn, list = c.changeLocked()
			break
		}
	}
	c.mu.Unlock()

	if fn != nil {
		fn(list)
	}
}

// List returns the visible notifications, newest first.
func (c *NotificationCenter) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listLocked()
}

// UnreadCount returns how many visible notifications are unread.
func (c *NotificationCenter) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if !e.n.Read {
			n++
		}
	}
	return n
}

// OnChange sets a callback invoked with the new list after every change.
func (c *NotificationCenter) OnChange(fn func([]Notification)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Close cancels every timer and detaches from any bound dispatcher.
func (c *NotificationCenter) Close() {
	c.mu.Lock()
	d, subs := c.bound, c.boundSubs
	c.bound, c.boundSubs = nil, nil
	c.entries = nil
	c.mu.Unlock()

	for _, s := range subs {
		d.Unsubscribe(s)
	}
	c.timers.Close()
}

func (c *NotificationCenter) expire(target *notificationEntry) {
	c.mu.Lock()
	removed := false
	for i, e := range c.entries {
		if e == target {
			c.entries = append(c.entries[:i:i], c.entries[i+1:]...)
			removed = true
			break
		}
	}
	var fn func([]Notification)
	var list []Notification
	if removed {
		fn, list = c.changeLocked()
	}
	c.mu.Unlock()

	if fn != nil {
		fn(list)
	}
}

func (c *NotificationCenter) listLocked() []Notification {
	out := make([]Notification, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.n
	}
	return out
}

func (c *NotificationCenter) changeLocked() (func([]Notification), []Notification) {
	if c.onChange == nil {
		return nil, nil
	}
	return c.onChange, c.listLocked()
}

// Bind turns qualifying channel events into notifications. A user session is
// told about agent replies and status changes; an agent session about user
// replies, new conversations and deletions.
func (c *NotificationCenter) Bind(d *Dispatcher, role Role) {
	var subs []Subscription
	if role == RoleAgent {
		subs = append(subs,
			On(d, EventUserResponse, func(p ResponsePayload) {
				c.Notify(KindUserResponse, "New customer reply", p.Message, p.ContactID)
			}),
			On(d, EventNewContactMessage, func(ct Contact) {
				c.Notify(KindNewMessage, "New contact message", ct.Subject, ct.ID)
			}),
			On(d, EventMessageDeleted, func(p MessageDeletedPayload) {
				c.Notify(KindMessageDeleted, "Message deleted", "A message was removed", p.ContactID)
			}),
		)
	} else {
		statusChanged := func(p StatusPayload) {
			c.Notify(KindStatusChange, "Status updated", "Your request is now "+string(p.NewStatus), p.ContactID)
		}
		subs = append(subs,
			On(d, EventAdminResponse, func(p ResponsePayload) {
				c.Notify(KindAdminResponse, "New reply from support", p.Message, p.ContactID)
			}),
			On(d, EventStatusUpdate, statusChanged),
			On(d, EventStatusChange, statusChanged),
		)
	}

	c.mu.Lock()
	c.bound = d
	c.boundSubs = append(c.boundSubs, subs...)
	c.mu.Unlock()
}
