package rentaly

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pkg/errors"
)

type recordingSender struct {
	mu   sync.Mutex
	live bool
	err  error
	sent []string
}

func (s *recordingSender) send(ctx context.Context, name string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return errNotLive
	}
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, name)
	return nil
}

func TestDispatcherOnOff(t *testing.T) {
	d := NewDispatcher(nil, nil)

	var got []string
	a := On(d, EventAdminResponse, func(p ResponsePayload) { got = append(got, "a:"+p.Message) })
	On(d, EventAdminResponse, func(p ResponsePayload) { got = append(got, "b:"+p.Message) })

	d.dispatch(eventAdminResponse, json.RawMessage(`{"contactId":"c1","message":"hi"}`))
	if len(got) != 2 || got[0] != "a:hi" || got[1] != "b:hi" {
		t.Fatalf("handlers ran %v", got)
	}

	t.Run("off with subscription removes only that handler", func(t *testing.T) {
		got = nil
		d.Off(eventAdminResponse, a)
		d.dispatch(eventAdminResponse, json.RawMessage(`{"message":"again"}`))
		if len(got) != 1 || got[0] != "b:again" {
			t.Fatalf("handlers ran %v", got)
		}
	})

	t.Run("off without subscription removes all", func(t *testing.T) {
		got = nil
		d.Off(eventAdminResponse)
		d.dispatch(eventAdminResponse, json.RawMessage(`{"message":"gone"}`))
		if len(got) != 0 {
			t.Fatalf("handlers ran %v", got)
		}
		if n := d.HandlerCount(eventAdminResponse); n != 0 {
			t.Fatalf("HandlerCount = %d", n)
		}
	})

	t.Run("subscription for another event is ignored", func(t *testing.T) {
		s := On(d, EventStatusUpdate, func(StatusPayload) {})
		d.Off(eventAdminResponse, s)
		if d.HandlerCount(eventStatusUpdate) != 1 {
			t.Fatal("handler for a different event was removed")
		}
	})
}

func TestDispatcherSameFunctionTwice(t *testing.T) {
	d := NewDispatcher(nil, nil)
	calls := 0
	h := func(StatusPayload) { calls++ }
	s1 := On(d, EventStatusUpdate, h)
	On(d, EventStatusUpdate, h)

	d.Unsubscribe(s1)
	d.dispatch(eventStatusUpdate, json.RawMessage(`{"contactId":"c1","newStatus":"closed"}`))
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDispatcherDecodeError(t *testing.T) {
	d := NewDispatcher(nil, nil)
	var decodeErr error
	d.OnDecodeError(func(name string, err error) { decodeErr = err })

	called := false
	On(d, EventStatusUpdate, func(StatusPayload) { called = true })
	d.dispatch(eventStatusUpdate, json.RawMessage(`"not an object"`))

	if called {
		t.Fatal("handler ran on undecodable payload")
	}
	if !errors.Is(decodeErr, ErrDecode) {
		t.Fatalf("decode error = %v", decodeErr)
	}
}

func TestDispatcherHandlerPanic(t *testing.T) {
	d := NewDispatcher(nil, nil)
	after := false
	On(d, EventConnect, func(ConnectedInfo) { panic("boom") })
	On(d, EventConnect, func(ConnectedInfo) { after = true })

	d.publish(eventConnect, ConnectedInfo{UserID: "u1"})
	if !after {
		t.Fatal("panicking handler stopped delivery")
	}
}

func TestDispatcherRaw(t *testing.T) {
	d := NewDispatcher(nil, nil)
	var raw json.RawMessage
	d.OnRaw(eventMessageDeleted, func(name string, data json.RawMessage) { raw = data })

	d.dispatch(eventMessageDeleted, json.RawMessage(`{"messageId":"m1"}`))
	if string(raw) != `{"messageId":"m1"}` {
		t.Fatalf("raw = %s", raw)
	}

	d.publish(eventMessageDeleted, MessageDeletedPayload{MessageID: "m2"})
	var p MessageDeletedPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.MessageID != "m2" {
		t.Fatalf("raw local payload = %s (%v)", raw, err)
	}
}

func TestDispatcherEmit(t *testing.T) {
	d := NewDispatcher(nil, nil)

	t.Run("no connection is a no-op", func(t *testing.T) {
		if err := d.Emit(context.Background(), eventJoinAdminRoom, struct{}{}); err != nil {
			t.Fatalf("Emit = %v", err)
		}
	})

	s := &recordingSender{}
	d.attach(s)

	t.Run("not live is a no-op", func(t *testing.T) {
		if err := EmitEvent(context.Background(), d, EventJoinContactRoom, RoomPayload{ContactID: "c1"}); err != nil {
			t.Fatalf("Emit = %v", err)
		}
		if len(s.sent) != 0 {
			t.Fatalf("sent %v while not live", s.sent)
		}
	})

	t.Run("live sends", func(t *testing.T) {
		s.live = true
		if err := EmitEvent(context.Background(), d, EventJoinContactRoom, RoomPayload{ContactID: "c1"}); err != nil {
			t.Fatalf("Emit = %v", err)
		}
		if len(s.sent) != 1 || s.sent[0] != eventJoinContactRoom {
			t.Fatalf("sent %v", s.sent)
		}
	})

	t.Run("write failure is a connection error", func(t *testing.T) {
		s.err = errors.New("broken pipe")
		err := d.Emit(context.Background(), eventLeaveAdminRoom, struct{}{})
		if !errors.Is(err, ErrConnection) {
			t.Fatalf("Emit = %v, want connection error", err)
		}
	})
}
