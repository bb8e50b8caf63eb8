package rentaly

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Session is one logged-in participant's realtime support session. It is
// built explicitly by the application and owns every component; Close tears
// all of them down, so nothing outlives a logout.
type Session struct {
	Client        *Client
	Events        *Dispatcher
	Conn          *RealtimeClient
	Rooms         *RoomTracker
	Typing        *TypingCoordinator
	Notifications *NotificationCenter
	Conversations *Reconciler

	cfg       Config
	logger    *zap.Logger
	adminOnce sync.Once
}

// NewSession wires the components for client. The token defaults to the
// client's token and the socket URL to one derived from its base URL.
func NewSession(client *Client, cfg Config) *Session {
	if cfg.Token == "" {
		cfg.Token = client.Token()
	}
	if cfg.Logger == nil {
		cfg.Logger = client.logger
	}
	if cfg.Metrics == nil {
		cfg.Metrics = client.metrics
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = client.httpClient
	}
	cfg.defaults()

	url := cfg.SocketURL
	if url == "" {
		url = SocketURL(client.BaseURL(), cfg.Token)
	}

	d := NewDispatcher(cfg.Logger, cfg.Metrics)
	conn := NewRealtimeClient(url, cfg, d)
	s := &Session{
		Client:        client,
		Events:        d,
		Conn:          conn,
		Rooms:         NewRoomTracker(conn, d, cfg.Logger),
		Typing:        NewTypingCoordinator(d, cfg, conn.UserID),
		Notifications: NewNotificationCenter(cfg),
		Conversations: NewReconciler(client.Contacts(), d, nil, cfg),
		cfg:           cfg,
		logger:        cfg.Logger.Named("session"),
	}
	s.Notifications.Bind(d, cfg.Role)
	return s
}

// Role returns the side the session speaks for.
func (s *Session) Role() Role { return s.cfg.Role }

// Start connects the realtime channel. Agents join the admin room once the
// connection is up.
func (s *Session) Start(ctx context.Context) error {
	if s.cfg.Role == RoleAgent {
		s.adminOnce.Do(func() {
			On(s.Events, EventConnect, func(ConnectedInfo) {
				if err := s.Rooms.JoinAdminRoom(context.Background()); err != nil {
					s.logger.Warn("join admin room failed", zap.Error(err))
				}
			})
		})
	}
	if _, err := s.Conn.Connect(ctx); err != nil {
		return errors.Wrap(err, "start session")
	}
	return nil
}

// Close ends the session: the connection is closed and every pending timer
// cancelled.
func (s *Session) Close() error {
	err := s.Conn.Close()
	s.Typing.Close()
	s.Notifications.Close()
	s.Conversations.Close()
	s.Rooms.Close()
	return err
}
