package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bakharlabs/blurshield/guard"
	"github.com/bakharlabs/blurshield/page"
)

// ErrSessionClosed is returned by Send after the websocket is gone.
var ErrSessionClosed = errors.New("bridge: session closed")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxMessage bounds one inbound frame; gestures and requests are tiny.
	maxMessage = 64 << 10
)

// Handler processes one request message for a session and returns the
// response. The engine binds this to its session scheduler, so handlers for
// one session never run concurrently with its tree mutations.
type Handler func(ctx context.Context, s *Session, req *Message) *Message

// Config configures a Server.
type Config struct {
	// Handler processes requests. Required.
	Handler Handler
	// AllowedOrigins gates the websocket upgrade. Empty allows only
	// same-host requests, the upgrader default.
	AllowedOrigins []string
	// OnClose runs after a session's read loop ends.
	OnClose func(s *Session)
	Logger  *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server upgrades HTTP requests into bridge sessions, one per document
// identity.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewServer creates a Server. Config.Handler must be non-nil.
func NewServer(cfg Config) *Server {
	cfg.applyDefaults()
	s := &Server{cfg: cfg, sessions: make(map[string]*Session)}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(cfg.AllowedOrigins) > 0 {
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if guard.ValidateOrigin(origin) != nil {
				return false
			}
			for _, allowed := range cfg.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		}
	}
	return s
}

// ServeHTTP upgrades the request. The document URL arrives as the `url`
// query parameter; its normalized identity keys the session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	identity, err := page.Identity(rawURL)
	if err != nil {
		http.Error(w, "bad document url", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Logger.Warn("bridge: upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	sess := &Session{
		Identity: identity,
		URL:      rawURL,
		conn:     conn,
		done:     make(chan struct{}),
	}
	s.mu.Lock()
	if old := s.sessions[identity]; old != nil {
		// One session per identity: a reconnect supersedes the old socket.
		old.Close()
	}
	s.sessions[identity] = sess
	s.mu.Unlock()

	s.cfg.Logger.Info("bridge: session open", "identity", identity, "remote", r.RemoteAddr)
	go sess.pingLoop()
	s.readLoop(sess)
}

// Session returns the live session for identity, or nil.
func (s *Server) Session(identity string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[identity]
}

// Broadcast pushes a notification to every live session.
func (s *Server) Broadcast(msg *Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if err := sess.Send(msg); err != nil && !errors.Is(err, ErrSessionClosed) {
			s.cfg.Logger.Warn("bridge: broadcast send failed",
				"identity", sess.Identity, "error", err)
		}
	}
}

// Close shuts down every session.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.Close()
		delete(s.sessions, id)
	}
	return nil
}

func (s *Server) readLoop(sess *Session) {
	defer func() {
		s.mu.Lock()
		if s.sessions[sess.Identity] == sess {
			delete(s.sessions, sess.Identity)
		}
		s.mu.Unlock()
		sess.Close()
		if s.cfg.OnClose != nil {
			s.cfg.OnClose(sess)
		}
		s.cfg.Logger.Info("bridge: session closed", "identity", sess.Identity)
	}()

	sess.conn.SetReadLimit(maxMessage)
	sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req Message
		if err := sess.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.cfg.Logger.Warn("bridge: read failed",
					"identity", sess.Identity, "error", err)
			}
			return
		}

		resp := s.cfg.Handler(context.Background(), sess, &req)
		if resp == nil {
			continue
		}
		if err := sess.Send(resp); err != nil {
			return
		}
	}
}

// Session is one live host connection. Send is safe for concurrent use; the
// engine pushes notifications from its scheduler while the read loop
// answers requests.
type Session struct {
	Identity string
	URL      string

	conn *websocket.Conn

	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

// Send writes one message to the host.
func (s *Session) Send(msg *Message) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

// Close tears the socket down. Idempotent.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *Session) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
