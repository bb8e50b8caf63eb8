package rentaly

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// DisconnectReason classifies why a live connection ended.
type DisconnectReason string

const (
	ReasonClientClose    DisconnectReason = "client disconnect"
	ReasonServerClose    DisconnectReason = "server disconnect"
	ReasonTransportError DisconnectReason = "transport error"
	ReasonPingTimeout    DisconnectReason = "ping timeout"
	ReasonUnauthorized   DisconnectReason = "unauthorized"
)

// ErrServerClose is returned by Transport.Read when the server closed the
// connection cleanly.
var ErrServerClose = errors.New("server closed connection")

// Transport is one live bidirectional channel.
type Transport interface {
	Read(ctx context.Context) (Frame, error)
	Write(ctx context.Context, f Frame) error
	Ping(ctx context.Context) error
	Close(reason string) error
}

// Dialer opens a Transport to url.
type Dialer func(ctx context.Context, url string) (Transport, error)

// WebsocketDialer dials JSON-framed websockets.
func WebsocketDialer(httpClient *http.Client) Dialer {
	if httpClient != nil && httpClient.Timeout > 0 {
		// The handshake is bounded by the context; websocket.Dial refuses
		// clients with a Timeout.
		cp := *httpClient
		cp.Timeout = 0
		httpClient = &cp
	}
	return func(ctx context.Context, u string) (Transport, error) {
		conn, resp, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPClient: httpClient})
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return nil, WrapError(ErrorInvalidToken, "websocket handshake rejected", err)
			}
			return nil, errors.Wrap(err, "websocket dial")
		}
		conn.SetReadLimit(1 << 20)
		return &wsTransport{conn: conn}, nil
	}
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) (Frame, error) {
	var f Frame
	if err := wsjson.Read(ctx, t.conn, &f); err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return f, errors.Wrap(ErrServerClose, err.Error())
		}
		return f, errors.Wrap(err, "websocket read")
	}
	return f, nil
}

func (t *wsTransport) Write(ctx context.Context, f Frame) error {
	return errors.Wrap(wsjson.Write(ctx, t.conn, f), "websocket write")
}

func (t *wsTransport) Ping(ctx context.Context) error {
	return t.conn.Ping(ctx)
}

func (t *wsTransport) Close(reason string) error {
	return t.conn.Close(websocket.StatusNormalClosure, reason)
}

func classifyReadError(err error) DisconnectReason {
	if errors.Is(err, ErrServerClose) {
		return ReasonServerClose
	}
	return ReasonTransportError
}

// SocketURL derives the websocket endpoint from an HTTP base URL.
func SocketURL(baseURL, token string) string {
	base := strings.Replace(baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	base = strings.TrimRight(base, "/") + "/ws"
	if token != "" {
		return base + "?token=" + url.QueryEscape(token)
	}
	return base
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
