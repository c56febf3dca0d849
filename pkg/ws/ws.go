package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"huddle/pkg/channel"
	"huddle/pkg/dispatch"
	"huddle/pkg/fanout"
	"huddle/pkg/limit"
	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/resync"
	"huddle/pkg/telemetry"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second

	maxFrameBytes = 1 << 20
)

// Client wraps one websocket connection. The write mutex serializes
// concurrent Send calls from broadcast goroutines; gorilla connections
// allow only one writer at a time.
type Client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *Client) SocketID() string { return c.id }

// Send writes one outbound frame. Object payloads are flattened next to
// the type field; anything else rides under "payload".
func (c *Client) Send(event string, payload any) error {
	frame := map[string]any{"type": event}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		var obj map[string]any
		if err := json.Unmarshal(b, &obj); err == nil {
			for k, v := range obj {
				if k != "type" {
					frame[k] = v
				}
			}
		} else {
			frame["payload"] = payload
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(frame)
}

func (c *Client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// frame is the inbound wire shape. The type field doubles as the event
// name for entity mutations; channel/channelName are accepted
// interchangeably. State rides only on join-channel frames: a
// reconnecting client may attach its local cache for reconciliation
// against the authoritative snapshot.
type frame struct {
	Type        string           `json:"type"`
	Channel     string           `json:"channel,omitempty"`
	ChannelName string           `json:"channelName,omitempty"`
	UserUUID    string           `json:"userUuid,omitempty"`
	DisplayName string           `json:"displayName,omitempty"`
	ID          string           `json:"id,omitempty"`
	Data        map[string]any   `json:"data,omitempty"`
	IDs         []string         `json:"ids,omitempty"`
	Timestamp   int64            `json:"timestamp,omitempty"`
	State       models.InitState `json:"state,omitempty"`
}

func (f *frame) channelName() string {
	if f.ChannelName != "" {
		return f.ChannelName
	}
	return f.Channel
}

// Server upgrades HTTP requests on /ws and runs one read pump per
// connection.
type Server struct {
	upgrader websocket.Upgrader
	channels *channel.Manager
	disp     *dispatch.Dispatcher
	bcast    *fanout.Broadcaster
	limits   *limit.Pool
	recon    *resync.Reconciler
}

func NewServer(channels *channel.Manager, disp *dispatch.Dispatcher, bcast *fanout.Broadcaster, limits *limit.Pool, recon *resync.Reconciler) *Server {
	if recon == nil {
		recon = resync.NewReconciler(0)
	}
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Channels are open by name; origin checking is left to the
			// fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		channels: channels,
		disp:     disp,
		bcast:    bcast,
		limits:   limits,
		recon:    recon,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := &Client{id: uuid.NewString(), conn: conn}
	telemetry.ConnectedSockets.Inc()
	logger.Info("socket_connected", "socket", c.id, "remote", r.RemoteAddr)

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go s.pingLoop(c, done)
	s.readPump(r, c)
	close(done)

	telemetry.ConnectedSockets.Dec()
	s.limits.Forget(c.id)
	_ = conn.Close()
	if ch, uid, found := s.channels.DropSocket(c.id); found {
		s.bcast.Left(ch, uid)
		s.bcast.Roster(ch)
		logger.Info("socket_dropped", "socket", c.id, "channel", ch, "user", uid)
	}
}

func (s *Server) pingLoop(c *Client, done <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := c.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) readPump(r *http.Request, c *Client) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("socket_read_failed", "socket", c.id, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !s.limits.Allow(c.id) {
			s.sendError(c, "", "validation_error", "rate limit exceeded")
			continue
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			s.sendError(c, "", "validation_error", "malformed frame")
			continue
		}

		switch f.Type {
		case "join-channel":
			s.handleJoin(c, &f)
		case "leave-channel":
			s.handleLeave(c, &f)
		default:
			req := dispatch.Request{
				Event:   f.Type,
				Channel: f.channelName(),
				User:    f.UserUUID,
				IDs:     f.IDs,
			}
			req.Env.ID = f.ID
			req.Env.UserUUID = f.UserUUID
			req.Env.Data = f.Data
			req.Env.Timestamp = f.Timestamp
			// The dispatcher replies to the sender itself on failure.
			_ = s.disp.Handle(r.Context(), req, c)
		}
	}
}

func (s *Server) handleJoin(c *Client, f *frame) {
	ch := f.channelName()
	snapshot, _, err := s.channels.Join(ch, f.UserUUID, f.DisplayName, c)
	if err != nil {
		var lockedErr *channel.LockedError
		var fullErr *channel.FullError
		switch {
		case errors.As(err, &lockedErr), errors.As(err, &fullErr):
			s.sendError(c, "join-channel", "channel_state_error", err.Error())
		default:
			s.sendError(c, "join-channel", "validation_error", err.Error())
		}
		return
	}
	if len(f.State) > 0 {
		// Reconnect with a local cache: merge it into the authoritative
		// snapshot before replying, so unacknowledged local writes that
		// are still fresh survive the round trip.
		snapshot = s.recon.Reconcile(f.State, snapshot)
	}
	_ = c.Send("init-state", map[string]any{
		"channel": ch,
		"state":   snapshot,
		"locked":  s.channels.Locked(ch),
	})
	if user, ok := s.channels.Member(ch, f.UserUUID); ok {
		s.bcast.Joined(ch, user)
	}
	s.bcast.Roster(ch)
}

func (s *Server) handleLeave(c *Client, f *frame) {
	ch := f.channelName()
	if _, ok := s.channels.Leave(ch, f.UserUUID); !ok {
		return
	}
	s.bcast.Left(ch, f.UserUUID)
	s.bcast.Roster(ch)
}

func (s *Server) sendError(c *Client, event, kind, msg string) {
	_ = c.Send(dispatch.EventError, map[string]any{
		"error": map[string]any{
			"kind":    kind,
			"message": msg,
			"event":   event,
		},
	})
}
