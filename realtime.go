package rentaly

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ConnState is the transport state of the realtime channel.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	// StateReconnecting is a connecting state waiting out a backoff delay.
	StateReconnecting ConnState = "reconnecting"
)

// ============================================================================
// RealtimeClient
// ============================================================================

// RealtimeClient owns the single realtime connection of a session. It is the
// only component that mutates connection state.
type RealtimeClient struct {
	url        string
	cfg        *Config
	dispatcher *Dispatcher
	logger     *zap.Logger
	metrics    *Metrics
	timers     *TimerGroup

	mu               sync.Mutex
	state            ConnState
	transport        Transport
	intentionalClose bool
	recon            *reconnector
	cancelFn         context.CancelFunc
	reconnectTimer   *Timer
	lastErr          error
	userID           string
	dials            int
	// gen changes on every Connect and Disconnect. Attempts started under an
	// older generation never install their transport.
	gen uint64
}

// NewRealtimeClient builds a client for url. Events flow through d. cfg
// defaults are applied on a copy.
func NewRealtimeClient(url string, cfg Config, d *Dispatcher) *RealtimeClient {
	cfg.defaults()
	c := &RealtimeClient{
		url:        url,
		cfg:        &cfg,
		dispatcher: d,
		logger:     cfg.Logger.Named("realtime"),
		metrics:    cfg.Metrics,
		timers:     NewTimerGroup(cfg.Clock),
		state:      StateDisconnected,
		recon:      newReconnector(&cfg),
	}
	d.attach(c)
	return c
}

// State returns the current connection state.
func (c *RealtimeClient) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the channel is live.
func (c *RealtimeClient) IsConnected() bool {
	return c.State() == StateConnected
}

// Err returns the error that ended retrying, either exhausted reconnects or a
// rejected token, else nil.
func (c *RealtimeClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// UserID returns the participant id acknowledged by the server.
func (c *RealtimeClient) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Dials returns how many transports have been opened.
func (c *RealtimeClient) Dials() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials
}

// Connect establishes the connection. It is idempotent: while a connection is
// live or in flight the same client is returned and no transport is opened.
func (c *RealtimeClient) Connect(ctx context.Context) (*RealtimeClient, error) {
	if _, err := checkToken(c.cfg.Token, c.cfg.Clock.Now()); err != nil {
		return c, err
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return c, nil
	}
	c.state = StateConnecting
	c.intentionalClose = false
	c.lastErr = nil
	c.recon.reset()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if err := c.establish(ctx, gen); err != nil {
		c.failAttempt(gen, 0, err)
		return c, err
	}
	return c, nil
}

// Disconnect closes the connection. An explicit disconnect never schedules a
// reconnect.
func (c *RealtimeClient) Disconnect() error {
	c.mu.Lock()
	c.intentionalClose = true
	c.gen++
	c.reconnectTimer.Stop()
	c.reconnectTimer = nil
	if c.cancelFn != nil {
		c.cancelFn()
		c.cancelFn = nil
	}
	t := c.transport
	c.transport = nil
	wasLive := c.state == StateConnected
	c.state = StateDisconnected
	c.recon.reset()
	c.mu.Unlock()

	c.metrics.setConnected(false)

	var err error
	if t != nil {
		err = t.Close(string(ReasonClientClose))
	}
	if wasLive {
		c.logger.Info("disconnected", zap.String("reason", string(ReasonClientClose)))
		c.dispatcher.publish(eventDisconnect, DisconnectInfo{Reason: ReasonClientClose})
	}
	return err
}

// Close disconnects and releases every timer. The client cannot be reused.
func (c *RealtimeClient) Close() error {
	err := c.Disconnect()
	c.timers.Close()
	return err
}

// establish dials, performs the handshake and installs the transport unless
// gen was superseded in the meantime.
func (c *RealtimeClient) establish(ctx context.Context, gen uint64) error {
	hctx, cancel := withTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	c.mu.Lock()
	c.dials++
	c.mu.Unlock()

	t, err := c.cfg.Dialer(hctx, c.url)
	if err != nil {
		c.metrics.connectAttempt(err)
		if CodeOf(err) == ErrorInvalidToken {
			return err
		}
		return WrapError(ErrorConnection, "dial", err)
	}

	ack, err := c.handshake(hctx, t)
	c.metrics.connectAttempt(err)
	if err != nil {
		_ = t.Close("handshake failed")
		return err
	}

	runCtx, runCancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.intentionalClose || c.gen != gen {
		c.mu.Unlock()
		runCancel()
		_ = t.Close(string(ReasonClientClose))
		return WrapError(ErrorConnection, "connection superseded during handshake", context.Canceled)
	}
	c.transport = t
	c.state = StateConnected
	c.cancelFn = runCancel
	c.userID = ack.UserID
	c.mu.Unlock()

	c.metrics.setConnected(true)
	c.logger.Info("connected", zap.String("url", redactURL(c.url)), zap.String("user_id", ack.UserID))

	go c.readLoop(runCtx, t)
	if c.cfg.HeartbeatInterval > 0 {
		go c.heartbeatLoop(runCtx, t)
	}
	c.dispatcher.publish(eventConnect, ConnectedInfo{UserID: ack.UserID})
	return nil
}

func (c *RealtimeClient) handshake(ctx context.Context, t Transport) (AuthenticatedPayload, error) {
	var ack AuthenticatedPayload
	f, err := t.Read(ctx)
	if err != nil {
		return ack, WrapError(ErrorConnection, "read handshake", err)
	}
	switch f.Event {
	case eventAuthenticated:
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &ack); err != nil {
				return ack, WrapError(ErrorDecode, "handshake payload", err)
			}
		}
		return ack, nil
	case eventError:
		var p ServerErrorPayload
		_ = json.Unmarshal(f.Data, &p)
		return ack, WrapError(ErrorInvalidToken, "handshake rejected", errors.New(p.Message))
	default:
		return ack, WrapError(ErrorConnection, "handshake", errors.Errorf("expected %q, got %q", eventAuthenticated, f.Event))
	}
}

// failAttempt reports a failed handshake and schedules the next attempt when
// the policy allows it. A reconnect the policy refuses ends retrying the same
// way exhausted attempts do.
func (c *RealtimeClient) failAttempt(gen uint64, attempt int, err error) {
	c.mu.Lock()
	if c.intentionalClose || c.gen != gen {
		c.mu.Unlock()
		c.logger.Debug("stale connect attempt discarded", zap.Int("attempt", attempt), zap.Error(err))
		return
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	c.logger.Warn("connect failed", zap.Int("attempt", attempt), zap.Error(err))
	c.dispatcher.publish(eventConnectError, ConnectErrorInfo{Attempt: attempt, Err: err})

	reason := ReasonTransportError
	if CodeOf(err) == ErrorInvalidToken {
		reason = ReasonUnauthorized
	}
	if c.cfg.ReconnectPolicy(reason) {
		c.scheduleReconnect(gen, err)
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.lastErr = err
	c.mu.Unlock()

	if attempt > 0 {
		c.logger.Error("reconnect refused", zap.Int("attempts", attempt), zap.String("reason", string(reason)), zap.Error(err))
		c.dispatcher.publish(eventReconnectFailed, ReconnectFailedInfo{Attempts: attempt, Err: err})
	}
}

func (c *RealtimeClient) readLoop(ctx context.Context, t Transport) {
	for {
		f, err := t.Read(ctx)
		if err != nil {
			c.drop(t, classifyReadError(err), err)
			return
		}
		c.dispatcher.dispatch(f.Event, f.Data)
	}
}

func (c *RealtimeClient) heartbeatLoop(ctx context.Context, t Transport) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, c.cfg.HeartbeatInterval)
			err := t.Ping(pctx)
			cancel()
			if err != nil && ctx.Err() == nil {
				c.drop(t, ReasonPingTimeout, err)
				return
			}
		}
	}
}

// drop tears down a transport that failed underneath us. Stale transports
// and intentional closes are ignored.
func (c *RealtimeClient) drop(t Transport, reason DisconnectReason, cause error) {
	c.mu.Lock()
	if c.transport != t || c.intentionalClose {
		c.mu.Unlock()
		return
	}
	c.transport = nil
	c.state = StateDisconnected
	if c.cancelFn != nil {
		c.cancelFn()
		c.cancelFn = nil
	}
	gen := c.gen
	c.mu.Unlock()

	_ = t.Close(string(reason))
	c.metrics.setConnected(false)
	c.logger.Warn("connection lost", zap.String("reason", string(reason)), zap.Error(cause))
	c.dispatcher.publish(eventDisconnect, DisconnectInfo{Reason: reason, Err: cause})

	if c.cfg.ReconnectPolicy(reason) {
		c.scheduleReconnect(gen, cause)
	}
}

func (c *RealtimeClient) scheduleReconnect(gen uint64, cause error) {
	c.mu.Lock()
	if c.intentionalClose || c.gen != gen || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	if !c.recon.shouldReconnect() {
		attempts := c.recon.attempt
		c.state = StateDisconnected
		c.lastErr = WrapError(ErrorReconnectFailed, "reconnect attempts exhausted", cause)
		failure := c.lastErr
		c.mu.Unlock()

		c.logger.Error("reconnect failed", zap.Int("attempts", attempts), zap.Error(cause))
		c.dispatcher.publish(eventReconnectFailed, ReconnectFailedInfo{Attempts: attempts, Err: failure})
		return
	}
	attempt, delay := c.recon.next()
	c.state = StateReconnecting
	c.reconnectTimer = c.timers.AfterFunc(delay, func() { c.reconnect(gen, attempt) })
	c.mu.Unlock()

	c.metrics.reconnectScheduled()
	c.logger.Info("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))
	c.dispatcher.publish(eventReconnectAttempt, ReconnectAttemptInfo{Attempt: attempt, Delay: delay})
}

func (c *RealtimeClient) reconnect(gen uint64, attempt int) {
	c.mu.Lock()
	if c.intentionalClose || c.gen != gen || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.reconnectTimer = nil
	c.mu.Unlock()

	if err := c.establish(context.Background(), gen); err != nil {
		c.failAttempt(gen, attempt, err)
		return
	}

	c.mu.Lock()
	if c.gen == gen {
		c.recon.reset()
	}
	c.mu.Unlock()
	c.logger.Info("reconnected", zap.Int("attempts", attempt))
	c.dispatcher.publish(eventReconnect, ReconnectInfo{Attempts: attempt})
}

// send writes one event. It returns errNotLive when there is no live channel.
func (c *RealtimeClient) send(ctx context.Context, name string, payload any) error {
	c.mu.Lock()
	t := c.transport
	live := c.state == StateConnected
	c.mu.Unlock()
	if !live || t == nil {
		return errNotLive
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", name)
	}
	wctx, cancel := withTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	return t.Write(wctx, Frame{Event: name, Data: data})
}

func redactURL(u string) string {
	for i := 0; i < len(u); i++ {
		if u[i] == '?' {
			return u[:i]
		}
	}
	return u
}
