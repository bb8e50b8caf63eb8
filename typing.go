package rentaly

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Typer is a participant currently composing a message.
type Typer struct {
	ParticipantID string
	Name          string
	Role          Role
}

type typingKey struct {
	participant string
	role        Role
}

type typingEntry struct {
	typer   Typer
	shownAt time.Time
	expiry  *Timer
	stop    *Timer
}

// TypingCoordinator tracks who is typing in each conversation. Outgoing
// start and stop calls are sent as-is; only received state is managed here.
type TypingCoordinator struct {
	dispatcher *Dispatcher
	role       Role
	self       func() string
	timers     *TimerGroup
	expiry     time.Duration
	minDisplay time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	active   map[string][]*typingEntry
	onChange func(contactID string, typers []Typer)
	subs     []Subscription
}

// NewTypingCoordinator subscribes to inbound typing events on d. self returns
// the session's own participant id so echoes can be ignored; it may be nil.
func NewTypingCoordinator(d *Dispatcher, cfg Config, self func() string) *TypingCoordinator {
	cfg.defaults()
	if self == nil {
		self = func() string { return "" }
	}
	t := &TypingCoordinator{
		dispatcher: d,
		role:       cfg.Role,
		self:       self,
		timers:     NewTimerGroup(cfg.Clock),
		expiry:     cfg.TypingExpiry,
		minDisplay: cfg.TypingMinDisplay,
		logger:     cfg.Logger.Named("typing"),
		active:     make(map[string][]*typingEntry),
	}
	t.subs = []Subscription{
		On(d, EventUserTyping, func(p TypingPayload) { t.started(p, RoleUser) }),
		On(d, EventAdminTyping, func(p TypingPayload) { t.started(p, RoleAgent) }),
		On(d, EventUserStoppedTyping, func(p TypingPayload) { t.stopped(p, RoleUser) }),
		On(d, EventAdminStoppedTyping, func(p TypingPayload) { t.stopped(p, RoleAgent) }),
		On(d, EventDisconnect, func(DisconnectInfo) { t.reset() }),
	}
	return t
}

// StartTyping tells the other side this session is typing in contactID.
func (t *TypingCoordinator) StartTyping(ctx context.Context, contactID string) error {
	if strings.TrimSpace(contactID) == "" {
		return invalidInput("start typing: empty contact id")
	}
	ev := EventUserTyping
	if t.role == RoleAgent {
		ev = EventAdminTyping
	}
	return EmitEvent(ctx, t.dispatcher, ev, TypingPayload{ContactID: contactID})
}

// StopTyping tells the other side this session stopped typing in contactID.
func (t *TypingCoordinator) StopTyping(ctx context.Context, contactID string) error {
	if strings.TrimSpace(contactID) == "" {
		return invalidInput("stop typing: empty contact id")
	}
	ev := EventUserStoppedTyping
	if t.role == RoleAgent {
		ev = EventAdminStoppedTyping
	}
	return EmitEvent(ctx, t.dispatcher, ev, TypingPayload{ContactID: contactID})
}

// CurrentTypers returns the participants typing in contactID, in the order
// they started.
func (t *TypingCoordinator) CurrentTypers(contactID string) []Typer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(contactID)
}

// OnChange sets a callback invoked whenever the typers of a conversation change.
func (t *TypingCoordinator) OnChange(fn func(contactID string, typers []Typer)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Close unsubscribes and cancels every pending timer.
func (t *TypingCoordinator) Close() {
	for _, s := range t.subs {
		t.dispatcher.Unsubscribe(s)
	}
	t.timers.Close()
	t.mu.Lock()
	t.active = make(map[string][]*typingEntry)
	t.mu.Unlock()
}

func (t *TypingCoordinator) started(p TypingPayload, role Role) {
	if p.ContactID == "" {
		return
	}
	if role == t.role && p.UserID != "" && p.UserID == t.self() {
		return
	}
	key := typingKey{participant: p.UserID, role: role}

	t.mu.Lock()
	e := t.findLocked(p.ContactID, key)
	added := e == nil
	if added {
		e = &typingEntry{
			typer:   Typer{ParticipantID: p.UserID, Name: p.UserName, Role: role},
			shownAt: t.timers.Now(),
		}
		t.active[p.ContactID] = append(t.active[p.ContactID], e)
	}
	e.stop.Stop()
	e.stop = nil
	e.expiry.Stop()
	e.expiry = t.armLocked(p.ContactID, key, e, t.expiry)
	fn, typers := t.changeLocked(p.ContactID, added)
	t.mu.Unlock()

	if added {
		t.logger.Debug("typing", zap.String("contact_id", p.ContactID), zap.String("participant", p.UserID), zap.String("role", string(role)))
	}
	notify(fn, p.ContactID, typers)
}

func (t *TypingCoordinator) stopped(p TypingPayload, role Role) {
	if p.ContactID == "" {
		return
	}
	key := typingKey{participant: p.UserID, role: role}

	t.mu.Lock()
	e := t.findLocked(p.ContactID, key)
	if e == nil || e.stop != nil {
		t.mu.Unlock()
		return
	}
	shown := t.timers.Now().Sub(e.shownAt)
	if shown < t.minDisplay {
		e.stop = t.armLocked(p.ContactID, key, e, t.minDisplay-shown)
		t.mu.Unlock()
		return
	}
	removed := t.removeLocked(p.ContactID, e)
	fn, typers := t.changeLocked(p.ContactID, removed)
	t.mu.Unlock()

	notify(fn, p.ContactID, typers)
}

// armLocked schedules removal of e. A timer that fires after e was already
// removed or replaced does nothing.
func (t *TypingCoordinator) armLocked(contactID string, key typingKey, e *typingEntry, d time.Duration) *Timer {
	var timer *Timer
	timer = t.timers.AfterFunc(d, func() {
		t.mu.Lock()
		if t.findLocked(contactID, key) != e || (e.expiry != timer && e.stop != timer) {
			t.mu.Unlock()
			return
		}
		removed := t.removeLocked(contactID, e)
		fn, typers := t.changeLocked(contactID, removed)
		t.mu.Unlock()
		notify(fn, contactID, typers)
	})
	return timer
}

func (t *TypingCoordinator) findLocked(contactID string, key typingKey) *typingEntry {
	for _, e := range t.active[contactID] {
		if e.typer.ParticipantID == key.participant && e.typer.Role == key.role {
			return e
		}
	}
	return nil
}

func (t *TypingCoordinator) removeLocked(contactID string, target *typingEntry) bool {
	entries := t.active[contactID]
	for i, e := range entries {
		if e != target {
			continue
		}
		e.expiry.Stop()
		e.stop.Stop()
		entries = append(entries[:i:i], entries[i+1:]...)
		if len(entries) == 0 {
			delete(t.active, contactID)
		} else {
			t.active[contactID] = entries
		}
		return true
	}
	return false
}

func (t *TypingCoordinator) reset() {
	t.mu.Lock()
	changed := make(map[string][]Typer, len(t.active))
	for contactID, entries := range t.active {
		for _, e := range entries {
			e.expiry.Stop()
			e.stop.Stop()
		}
		changed[contactID] = nil
	}
	t.active = make(map[string][]*typingEntry)
	fn := t.onChange
	t.mu.Unlock()

	for contactID := range changed {
		notify(fn, contactID, nil)
	}
}

func (t *TypingCoordinator) snapshotLocked(contactID string) []Typer {
	entries := t.active[contactID]
	out := make([]Typer, len(entries))
	for i, e := range entries {
		out[i] = e.typer
	}
	return out
}

func (t *TypingCoordinator) changeLocked(contactID string, changed bool) (func(string, []Typer), []Typer) {
	if !changed || t.onChange == nil {
		return nil, nil
	}
	return t.onChange, t.snapshotLocked(contactID)
}

func notify(fn func(string, []Typer), contactID string, typers []Typer) {
	if fn != nil {
		fn(contactID, typers)
	}
}
