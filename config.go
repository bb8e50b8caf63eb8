package rentaly

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Role is the side of the conversation a session speaks for.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Config configures a Session and its realtime connection.
type Config struct {
	Token string
	Role  Role

	// SocketURL overrides the websocket URL derived from the client base URL.
	SocketURL string

	// MaxReconnectAttempts bounds automatic reconnects. Zero selects the
	// default; a negative value disables reconnection.
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	// ReconnectJitter is the random fraction added to each delay. Zero
	// selects the default; a negative value disables jitter.
	ReconnectJitter float64
	// ReconnectPolicy decides which disconnect reasons are recoverable.
	ReconnectPolicy func(DisconnectReason) bool

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// HeartbeatInterval enables websocket pings when positive. Zero leaves
	// liveness to the read loop.
	HeartbeatInterval time.Duration

	NotificationDuration time.Duration
	TypingExpiry         time.Duration
	TypingMinDisplay     time.Duration

	Dialer     Dialer
	HTTPClient *http.Client
	Clock      Clock
	Logger     *zap.Logger
	Metrics    *Metrics
}

const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 5 * time.Second
	DefaultReconnectJitter      = 0.5
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
	DefaultNotificationDuration = 5 * time.Second
	DefaultTypingExpiry         = 3 * time.Second
	DefaultTypingMinDisplay     = 500 * time.Millisecond
)

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var c Config
	c.defaults()
	return c
}

func (c *Config) defaults() {
	if c.Role == "" {
		c.Role = RoleUser
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.ReconnectJitter == 0 {
		c.ReconnectJitter = DefaultReconnectJitter
	}
	if c.ReconnectPolicy == nil {
		c.ReconnectPolicy = DefaultReconnectPolicy
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.NotificationDuration == 0 {
		c.NotificationDuration = DefaultNotificationDuration
	}
	if c.TypingExpiry == 0 {
		c.TypingExpiry = DefaultTypingExpiry
	}
	if c.TypingMinDisplay == 0 {
		c.TypingMinDisplay = DefaultTypingMinDisplay
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Dialer == nil {
		c.Dialer = WebsocketDialer(c.HTTPClient)
	}
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// DefaultReconnectPolicy reconnects after every drop except an explicit
// client disconnect or a rejected handshake.
func DefaultReconnectPolicy(reason DisconnectReason) bool {
	switch reason {
	case ReasonClientClose, ReasonUnauthorized:
		return false
	default:
		return true
	}
}
