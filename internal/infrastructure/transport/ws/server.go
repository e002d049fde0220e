package ws

import (
	"context"
	"net/http"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	"callrelay/internal/infrastructure/middleware"
	"callrelay/pkg/optimize"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config carries the connection-level knobs for the WebSocket adapter.
type Config struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	AllowedOrigins []string
}

// Server upgrades admitted lobby requests and pumps frames between the
// client and the relay. One reader and one writer goroutine per
// session; the relay never touches the connection directly.
type Server struct {
	relay     ports.RelayService
	collector ports.Collector
	upgrader  websocket.Upgrader

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
	readLimit    int64

	framePool *optimize.BytePool
	logger    *zap.SugaredLogger
}

func NewServer(relay ports.RelayService, collector ports.Collector, cfg Config, logger *zap.SugaredLogger) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 5 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 2 * cfg.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 1_000_000
	}

	return &Server{
		relay:     relay,
		collector: collector,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		writeTimeout: cfg.WriteTimeout,
		readLimit:    cfg.ReadLimit,
		framePool:    optimize.NewBytePool(4096),
		logger:       logger,
	}
}

// originChecker matches the Origin header against the configured list.
// Requests without an Origin header (non-browser clients) are allowed.
func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		set[origin] = true
	}

	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// SetupRoutes registers both lobby forms. Admission runs as middleware,
// so rejected clients get a plain HTTP status before any upgrade.
func (s *Server) SetupRoutes(router *gin.Engine, admission ports.AdmissionService, enforce bool) {
	router.GET("/lobby", middleware.Admission(admission, s.collector), s.Lobby)
	router.GET("/lobby/:identity/:room", middleware.LegacyAdmission(admission, enforce, s.collector), s.Lobby)
}

// Lobby upgrades the connection and serves it until the session ends.
func (s *Server) Lobby(c *gin.Context) {
	claim, ok := middleware.ClaimFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "admission claim missing"})
		return
	}

	start := time.Now()
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade writes its own error response.
		s.logger.Warnw("websocket upgrade failed", "identity", claim.Identity, "error", err)
		return
	}

	sess, err := s.relay.Admit(c.Request.Context(), claim, domain.TransportWebSocket)
	if err != nil {
		s.logger.Errorw("admission failed after upgrade", "identity", claim.Identity, "error", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "admission failed"),
			time.Now().Add(s.writeTimeout))
		conn.Close()
		return
	}
	s.collector.AdmissionDuration(time.Since(start))

	go s.writePump(sess, conn)
	s.readPump(sess, conn)
}

// readPump drains the connection until it closes. It owns the teardown
// for client-initiated departures; the registry removal decides the
// winner when eviction or a write failure races it.
func (s *Server) readPump(sess *domain.Session, conn *websocket.Conn) {
	reason := domain.DepartDisconnected
	defer func() {
		s.relay.Teardown(context.Background(), sess.ID, reason)
		conn.Close()
	}()

	conn.SetReadLimit(s.readLimit)
	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		sess.Touch(time.Now())
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		sess.Touch(time.Now())
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(s.writeTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = domain.DepartLeft
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Infow("websocket read failed", "session_id", sess.ID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		s.handleFrame(sess, data)
	}
}

func (s *Server) handleFrame(sess *domain.Session, data []byte) {
	sess.Touch(time.Now())

	kind, payload, err := domain.DecodeFrame(data)
	if err != nil {
		s.logger.Debugw("dropping undecodable frame", "session_id", sess.ID, "error", err)
		return
	}

	// A bare heartbeat refreshes liveness and nothing else.
	if kind == domain.KindHeartbeat && len(payload) == 0 {
		return
	}

	s.relay.Route(context.Background(), sess, kind, payload)
}

// writePump drains the session queues onto the wire. Control frames go
// first so media volume cannot starve departure notices.
func (s *Server) writePump(sess *domain.Session, conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case p := <-sess.Control():
			if !s.writeFrame(sess, conn, p) {
				return
			}
			continue
		default:
		}

		select {
		case p := <-sess.Control():
			if !s.writeFrame(sess, conn, p) {
				return
			}
		case p := <-sess.Media():
			if !s.writeFrame(sess, conn, p) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.failWrite(sess, conn, err)
				return
			}
		case <-sess.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.writeTimeout))
			conn.Close()
			return
		}
	}
}

func (s *Server) writeFrame(sess *domain.Session, conn *websocket.Conn, p *domain.Packet) bool {
	// WriteMessage copies the frame before returning, so the scratch
	// buffer can go straight back to the pool.
	frame := domain.AppendFrame(s.framePool.Get(), p)
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	err := conn.WriteMessage(websocket.BinaryMessage, frame)
	s.framePool.Put(frame)
	if err != nil {
		s.failWrite(sess, conn, err)
		return false
	}
	return true
}

// failWrite tears the session down and closes the connection so the
// blocked reader unwinds too.
func (s *Server) failWrite(sess *domain.Session, conn *websocket.Conn, err error) {
	s.logger.Infow("websocket write failed", "session_id", sess.ID, "error", err)
	s.relay.Teardown(context.Background(), sess.ID, domain.DepartWriteFailed)
	conn.Close()
}
