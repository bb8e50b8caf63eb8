package rentaly

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// ============================================================================
// Manual clock
// ============================================================================

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: len(c.timers), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, running due callbacks in deadline order on the
// calling goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at.Equal(due[j].at) {
				return due[i].seq < due[j].seq
			}
			return due[i].at.Before(due[j].at)
		})
		next := due[0]
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()

		next.f()
	}
}

// Active counts timers that are neither stopped nor fired.
func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// ============================================================================
// In-memory transport
// ============================================================================

type fakeTransport struct {
	in     chan Frame
	closed chan struct{}

	mu          sync.Mutex
	written     []Frame
	closeReason string
	closeErr    error
	once        sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan Frame, 64),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) Read(ctx context.Context) (Frame, error) {
	select {
	case f := <-t.in:
		return f, nil
	case <-t.closed:
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closeErr != nil {
			return Frame{}, t.closeErr
		}
		return Frame{}, errors.New("transport closed")
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (t *fakeTransport) Write(ctx context.Context, f Frame) error {
	select {
	case <-t.closed:
		return errors.New("write on closed transport")
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = append(t.written, f)
	return nil
}

func (t *fakeTransport) Ping(ctx context.Context) error { return nil }

func (t *fakeTransport) Close(reason string) error {
	t.once.Do(func() {
		t.mu.Lock()
		t.closeReason = reason
		t.mu.Unlock()
		close(t.closed)
	})
	return nil
}

// push queues an inbound event.
func (t *fakeTransport) push(event string, payload any) {
	data, _ := json.Marshal(payload)
	t.in <- Frame{Event: event, Data: data}
}

// serverClose ends the stream the way a clean server close does.
func (t *fakeTransport) serverClose() {
	t.mu.Lock()
	t.closeErr = errors.Wrap(ErrServerClose, "status 1000")
	t.mu.Unlock()
	t.Close("server")
}

// Closed reports whether Close was called or the server ended the stream.
func (t *fakeTransport) Closed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *fakeTransport) Written() []Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Frame(nil), t.written...)
}

func (t *fakeTransport) writtenEvents() []string {
	var names []string
	for _, f := range t.Written() {
		names = append(names, f.Event)
	}
	return names
}

type fakeDialer struct {
	mu         sync.Mutex
	dials      int
	fail       error
	reject     bool
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail != nil {
		return nil, d.fail
	}
	t := newFakeTransport()
	if d.reject {
		t.push(eventError, ServerErrorPayload{Message: "invalid token"})
	} else {
		t.push(eventAuthenticated, AuthenticatedPayload{UserID: "u-self", Role: "user"})
	}
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

func (d *fakeDialer) setReject(reject bool) {
	d.mu.Lock()
	d.reject = reject
	d.mu.Unlock()
}

// open returns the transports that are still open.
func (d *fakeDialer) open() []*fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*fakeTransport
	for _, t := range d.transports {
		if !t.Closed() {
			out = append(out, t)
		}
	}
	return out
}

// gatedDialer holds dial number gateAt until gate is closed. entered is
// closed once that dial is waiting.
type gatedDialer struct {
	*fakeDialer
	gateAt  int
	entered chan struct{}
	gate    chan struct{}

	mu    sync.Mutex
	calls int
}

func newGatedDialer(gateAt int) *gatedDialer {
	return &gatedDialer{
		fakeDialer: &fakeDialer{},
		gateAt:     gateAt,
		entered:    make(chan struct{}),
		gate:       make(chan struct{}),
	}
}

func (g *gatedDialer) Dial(ctx context.Context, url string) (Transport, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()
	if n == g.gateAt {
		close(g.entered)
		<-g.gate
	}
	return g.fakeDialer.Dial(ctx, url)
}

func (d *fakeDialer) setFail(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

// ============================================================================
// Helpers
// ============================================================================

func testConfig(clock Clock, dialer *fakeDialer) Config {
	cfg := Config{
		Token:              "opaque-test-token",
		Clock:              clock,
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  5 * time.Second,
		ReconnectJitter:    -1,
	}
	if dialer != nil {
		cfg.Dialer = dialer.Dial
	}
	return cfg
}

// recv waits for one value or fails the test.
func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

// collect subscribes to ev and returns a buffered channel of payloads.
func collect[T any](d *Dispatcher, ev Event[T]) <-chan T {
	ch := make(chan T, 32)
	On(d, ev, func(v T) { ch <- v })
	return ch
}

// wait blocks until ch is closed or fails the test.
func wait(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
}

// eventually polls cond until it holds or fails the test.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
