package rentaly

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Phase is the state of the conversation panel the reconciler drives.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseLoading  Phase = "loading"
	PhaseLoaded   Phase = "loaded"
	PhaseUpdating Phase = "updating"
)

// ContactsAPI is the request/response surface the reconciler needs.
type ContactsAPI interface {
	List(ctx context.Context, opts *ListOptions) (*ContactList, error)
	Get(ctx context.Context, id string) (*Contact, error)
	Respond(ctx context.Context, id, message string) (*RespondResult, error)
	Delete(ctx context.Context, id string) error
}

// Reconciler folds fetched conversations and pushed channel events into one
// ConversationStore. A fetch replaces the whole thread and pushes append to
// it; whichever completes last wins.
type Reconciler struct {
	api        ContactsAPI
	dispatcher *Dispatcher
	store      *ConversationStore
	role       Role
	clock      Clock
	logger     *zap.Logger

	mu       sync.Mutex
	phase    Phase
	onUpdate func(*Contact)
	subs     []Subscription
}

// NewReconciler subscribes to conversation events on d.
func NewReconciler(api ContactsAPI, d *Dispatcher, store *ConversationStore, cfg Config) *Reconciler {
	cfg.defaults()
	if store == nil {
		store = NewConversationStore()
	}
	r := &Reconciler{
		api:        api,
		dispatcher: d,
		store:      store,
		role:       cfg.Role,
		clock:      cfg.Clock,
		logger:     cfg.Logger.Named("reconciler"),
		phase:      PhaseIdle,
	}
	r.subs = []Subscription{
		On(d, EventAdminResponse, func(p ResponsePayload) { r.applyResponse(p, SentByAdmin) }),
		On(d, EventUserResponse, func(p ResponsePayload) { r.applyResponse(p, SentByUser) }),
		On(d, EventStatusUpdate, r.applyStatus),
		On(d, EventStatusChange, r.applyStatus),
		On(d, EventMessageDeleted, r.applyDeleted),
		On(d, EventNewContactMessage, r.applyNewContact),
	}
	return r
}

// Store exposes the underlying model.
func (r *Reconciler) Store() *ConversationStore { return r.store }

// Current returns the open conversation including pending responses.
func (r *Reconciler) Current() *Contact { return r.store.Current() }

// List returns the summary list.
func (r *Reconciler) List() []Contact { return r.store.List() }

// Phase returns the panel state.
func (r *Reconciler) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// OnUpdate sets a callback invoked with the open conversation after every
// change to it.
func (r *Reconciler) OnUpdate(fn func(*Contact)) {
	r.mu.Lock()
	r.onUpdate = fn
	r.mu.Unlock()
}

// LoadConversation fetches a conversation and makes it the open one. On
// failure the previous state is kept and the error returned.
func (r *Reconciler) LoadConversation(ctx context.Context, id string) (*Contact, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidInput("load: empty contact id")
	}
	prev := r.setPhase(PhaseLoading)

	c, err := r.api.Get(ctx, id)
	if err != nil {
		r.setPhase(prev)
		r.logger.Warn("load conversation failed", zap.String("contact_id", id), zap.Error(err))
		return nil, err
	}
	r.store.SetCurrent(c)
	r.setPhase(PhaseLoaded)
	r.notifyUpdate()
	return r.store.Current(), nil
}

// LoadList fetches a page of conversations into the summary list. The panel
// phase is not touched.
func (r *Reconciler) LoadList(ctx context.Context, opts *ListOptions) (*ContactList, error) {
	l, err := r.api.List(ctx, opts)
	if err != nil {
		r.logger.Warn("load list failed", zap.Error(err))
		return nil, err
	}
	r.store.SetList(l)
	return l, nil
}

// SendResponse posts message to a conversation. The response is visible in
// Current as pending until the server confirms it; a failed send is rolled
// back and its error returned.
func (r *Reconciler) SendResponse(ctx context.Context, contactID, message string) (*Response, error) {
	if strings.TrimSpace(contactID) == "" {
		return nil, invalidInput("send: empty contact id")
	}
	if strings.TrimSpace(message) == "" {
		return nil, invalidInput("send: empty message")
	}
	if status, ok := r.store.Status(contactID); ok && status == StatusClosed {
		return nil, WrapError(ErrorConversationClosed, "send to "+contactID, ErrConversationClosed)
	}

	sentBy := SentByUser
	if r.role == RoleAgent {
		sentBy = SentByAdmin
	}
	pending := Response{
		ClientID: uuid.NewString(),
		Message:  message,
		SentBy:   sentBy,
		SentAt:   r.clock.Now(),
	}
	r.store.AddPending(contactID, pending)
	r.notifyUpdate()

	res, err := r.api.Respond(ctx, contactID, message)
	if err != nil {
		r.store.ResolvePending(contactID, pending.ClientID, nil)
		r.notifyUpdate()
		r.logger.Warn("send failed, rolled back", zap.String("contact_id", contactID), zap.Error(err))
		return nil, err
	}

	confirmed := res.Response
	if confirmed.Message == "" {
		confirmed.Message = message
		confirmed.SentBy = sentBy
		confirmed.SentAt = pending.SentAt
	}
	r.store.ResolvePending(contactID, pending.ClientID, &confirmed)
	if res.Contact != nil && res.Contact.Status != "" {
		r.store.SetStatus(contactID, res.Contact.Status, res.Contact.Priority)
	}
	r.notifyUpdate()
	return &confirmed, nil
}

// MarkAsRead marks a conversation, or one response of it, as read locally
// and tells the server.
func (r *Reconciler) MarkAsRead(ctx context.Context, contactID, responseID string) error {
	if strings.TrimSpace(contactID) == "" {
		return invalidInput("mark read: empty contact id")
	}
	r.store.MarkRead(contactID, responseID)
	r.notifyUpdate()

	ev := EventMarkAsRead
	if responseID != "" {
		ev = EventMarkMessageRead
	}
	return EmitEvent(ctx, r.dispatcher, ev, ReadPayload{ContactID: contactID, ResponseID: responseID})
}

// DeleteConversation removes a conversation on the server and then from the
// list and, when it is open, the panel. A failed delete leaves state alone.
func (r *Reconciler) DeleteConversation(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalidInput("delete: empty contact id")
	}
	if err := r.api.Delete(ctx, id); err != nil {
		r.logger.Warn("delete conversation failed", zap.String("contact_id", id), zap.Error(err))
		return err
	}

	open := r.store.Confirmed()
	r.store.Remove(id)
	if open != nil && open.ID == id {
		r.setPhase(PhaseIdle)
		r.notifyUpdate()
	}
	return nil
}

// Close detaches the reconciler from the dispatcher and empties the model.
func (r *Reconciler) Close() {
	for _, s := range r.subs {
		r.dispatcher.Unsubscribe(s)
	}
	r.store.Reset()
	r.setPhase(PhaseIdle)
}

func (r *Reconciler) applyResponse(p ResponsePayload, sender SenderKind) {
	if p.ContactID == "" {
		return
	}
	resp, err := p.DecodeResponse(sender, r.clock.Now())
	if err != nil {
		r.logger.Warn("bad response payload", zap.String("contact_id", p.ContactID), zap.Error(err))
		return
	}
	if !r.store.AppendResponse(p.ContactID, resp) {
		r.logger.Debug("response not applied", zap.String("contact_id", p.ContactID))
		return
	}
	if sender == SentByAdmin {
		if status, ok := r.store.Status(p.ContactID); ok && status != StatusResolved && status != StatusClosed {
			r.store.SetStatus(p.ContactID, StatusInProgress, "")
		}
	}
	r.touched(p.ContactID)
}

func (r *Reconciler) applyStatus(p StatusPayload) {
	if p.ContactID == "" || p.NewStatus == "" {
		return
	}
	if r.store.SetStatus(p.ContactID, p.NewStatus, p.Priority) {
		r.touched(p.ContactID)
	}
}

func (r *Reconciler) applyDeleted(p MessageDeletedPayload) {
	if p.MessageID == "" {
		return
	}
	if r.store.RemoveResponse(p.ContactID, p.MessageID) {
		r.touched(p.ContactID)
	}
}

func (r *Reconciler) applyNewContact(c Contact) {
	if c.ID == "" {
		return
	}
	r.store.Prepend(c)
}

// touched moves a loaded panel to updating when the open conversation changed.
func (r *Reconciler) touched(contactID string) {
	cur := r.store.Confirmed()
	if contactID != "" && (cur == nil || cur.ID != contactID) {
		return
	}
	r.mu.Lock()
	if r.phase == PhaseLoaded {
		r.phase = PhaseUpdating
	}
	r.mu.Unlock()
	r.notifyUpdate()
}

func (r *Reconciler) setPhase(p Phase) Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.phase
	r.phase = p
	return prev
}

func (r *Reconciler) notifyUpdate() {
	r.mu.Lock()
	fn := r.onUpdate
	r.mu.Unlock()
	if fn != nil {
		fn(r.store.Current())
	}
}
