package rentaly

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Event names a channel or lifecycle event together with its payload type, so
// a handler registered for it cannot be given the wrong payload.
type Event[T any] struct {
	Name string
}

// NewEvent declares a typed event.
func NewEvent[T any](name string) Event[T] {
	return Event[T]{Name: name}
}

// Subscription identifies one registered handler.
type Subscription struct {
	name string
	id   uint64
}

// Name returns the event name the subscription listens on.
func (s Subscription) Name() string { return s.name }

// RawHandler receives an event without decoding.
type RawHandler func(name string, data json.RawMessage)

type handlerEntry struct {
	id      uint64
	deliver func(data json.RawMessage, local any) error
}

// sender is the outbound half the dispatcher emits through.
type sender interface {
	send(ctx context.Context, name string, payload any) error
}

var errNotLive = errors.New("connection not live")

// Dispatcher is the publish/subscribe surface layered on the connection.
// Inbound events are delivered synchronously, in arrival order.
type Dispatcher struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]handlerEntry
	sender   sender

	logger        *zap.Logger
	metrics       *Metrics
	onDecodeError func(name string, err error)
}

// NewDispatcher creates an empty registry.
func NewDispatcher(logger *zap.Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[string][]handlerEntry),
		logger:   logger.Named("dispatcher"),
		metrics:  metrics,
	}
}

// On registers h for ev. Several handlers may listen on the same event.
func On[T any](d *Dispatcher, ev Event[T], h func(T)) Subscription {
	return d.add(ev.Name, func(data json.RawMessage, local any) error {
		if local != nil {
			v, ok := local.(T)
			if !ok {
				return errors.Errorf("payload %T does not match event %s", local, ev.Name)
			}
			h(v)
			return nil
		}
		var v T
		if len(data) > 0 {
			if err := json.Unmarshal(data, &v); err != nil {
				return err
			}
		}
		h(v)
		return nil
	})
}

// OnRaw registers an undecoded handler for name.
func (d *Dispatcher) OnRaw(name string, h RawHandler) Subscription {
	return d.add(name, func(data json.RawMessage, local any) error {
		if local != nil && data == nil {
			b, err := json.Marshal(local)
			if err != nil {
				return err
			}
			data = b
		}
		h(name, data)
		return nil
	})
}

// OnDecodeError sets a callback for payloads that could not be decoded.
func (d *Dispatcher) OnDecodeError(fn func(name string, err error)) {
	d.mu.Lock()
	d.onDecodeError = fn
	d.mu.Unlock()
}

func (d *Dispatcher) add(name string, deliver func(json.RawMessage, any) error) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.handlers[name] = append(d.handlers[name], handlerEntry{id: d.nextID, deliver: deliver})
	return Subscription{name: name, id: d.nextID}
}

// Off removes handlers for name. With no subscriptions every handler for the
// name is removed; otherwise only the given ones.
func (d *Dispatcher) Off(name string, subs ...Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(subs) == 0 {
		delete(d.handlers, name)
		return
	}
	drop := make(map[uint64]bool, len(subs))
	for _, s := range subs {
		if s.name == name {
			drop[s.id] = true
		}
	}
	kept := d.handlers[name][:0:0]
	for _, e := range d.handlers[name] {
		if !drop[e.id] {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(d.handlers, name)
		return
	}
	d.handlers[name] = kept
}

// Unsubscribe removes exactly one handler.
func (d *Dispatcher) Unsubscribe(s Subscription) {
	d.Off(s.name, s)
}

// HandlerCount returns how many handlers listen on name.
func (d *Dispatcher) HandlerCount(name string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[name])
}

// Emit sends an event on the channel. It is a no-op when the connection is
// not live.
func (d *Dispatcher) Emit(ctx context.Context, name string, payload any) error {
	d.mu.RLock()
	s := d.sender
	d.mu.RUnlock()

	if s == nil {
		d.logger.Debug("emit dropped, no connection", zap.String("event", name))
		return nil
	}
	err := s.send(ctx, name, payload)
	if errors.Is(err, errNotLive) {
		d.logger.Debug("emit dropped, connection not live", zap.String("event", name))
		return nil
	}
	if err != nil {
		return WrapError(ErrorConnection, "emit "+name, err)
	}
	d.metrics.eventEmitted(name)
	return nil
}

// EmitEvent is the typed form of Emit.
func EmitEvent[T any](ctx context.Context, d *Dispatcher, ev Event[T], payload T) error {
	return d.Emit(ctx, ev.Name, payload)
}

func (d *Dispatcher) attach(s sender) {
	d.mu.Lock()
	d.sender = s
	d.mu.Unlock()
}

// dispatch delivers an inbound wire event.
func (d *Dispatcher) dispatch(name string, data json.RawMessage) {
	d.metrics.eventReceived(name)
	d.deliver(name, data, nil)
}

// publish delivers a locally produced event.
func (d *Dispatcher) publish(name string, payload any) {
	d.deliver(name, nil, payload)
}

func (d *Dispatcher) deliver(name string, data json.RawMessage, local any) {
	d.mu.RLock()
	entries := append([]handlerEntry(nil), d.handlers[name]...)
	onDecodeError := d.onDecodeError
	d.mu.RUnlock()

	for _, e := range entries {
		if err := d.invoke(e, data, local); err != nil {
			d.logger.Warn("event payload rejected", zap.String("event", name), zap.Error(err))
			if onDecodeError != nil {
				onDecodeError(name, WrapError(ErrorDecode, name, err))
			}
		}
	}
}

func (d *Dispatcher) invoke(e handlerEntry, data json.RawMessage, local any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked", zap.Any("panic", r))
		}
	}()
	return e.deliver(data, local)
}
