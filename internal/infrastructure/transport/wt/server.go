package wt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	"callrelay/internal/infrastructure/middleware"
	apperrors "callrelay/pkg/errors"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
	"go.uber.org/zap"
)

// keepAlivePing is the bare keep-alive datagram sent by clients that
// have nothing to say. It refreshes liveness and is never relayed.
var keepAlivePing = []byte("ping")

// Config carries the QUIC listener settings. Zero values fall back to
// the defaults applied in NewServer.
type Config struct {
	Address           string
	CertFile          string
	KeyFile           string
	IdleTimeout       time.Duration
	KeepAliveInterval time.Duration
	DatagramThreshold int
	WriteTimeout      time.Duration
	ReadLimit         int64
	AllowedOrigins    []string
	EnforceAdmission  bool
}

// Server accepts WebTransport sessions over HTTP/3 and bridges them to
// the relay. Inbound traffic arrives as datagrams or one-shot uni
// streams; outbound frames go out as datagrams when they fit under the
// datagram threshold and on a fresh uni stream otherwise.
type Server struct {
	relay     ports.RelayService
	admission ports.AdmissionService
	collector ports.Collector
	wt        *webtransport.Server

	certFile          string
	keyFile           string
	datagramThreshold int
	writeTimeout      time.Duration
	readLimit         int64
	enforce           bool

	logger *zap.SugaredLogger
}

func NewServer(relay ports.RelayService, admission ports.AdmissionService, collector ports.Collector, cfg Config, logger *zap.SugaredLogger) *Server {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Second
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 2 * time.Second
	}
	if cfg.DatagramThreshold <= 0 {
		cfg.DatagramThreshold = 400
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 1_000_000
	}

	s := &Server{
		relay:             relay,
		admission:         admission,
		collector:         collector,
		certFile:          cfg.CertFile,
		keyFile:           cfg.KeyFile,
		datagramThreshold: cfg.DatagramThreshold,
		writeTimeout:      cfg.WriteTimeout,
		readLimit:         cfg.ReadLimit,
		enforce:           cfg.EnforceAdmission,
		logger:            logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/lobby", s.handleLobby)
	mux.HandleFunc("/lobby/", s.handleLobby)

	s.wt = &webtransport.Server{
		H3: http3.Server{
			Addr:            cfg.Address,
			Handler:         mux,
			EnableDatagrams: true,
			QUICConfig: &quic.Config{
				MaxIdleTimeout:  cfg.IdleTimeout,
				KeepAlivePeriod: cfg.KeepAliveInterval,
				EnableDatagrams: true,
			},
		},
		CheckOrigin: originChecker(cfg.AllowedOrigins),
	}

	return s
}

// ListenAndServe blocks until the listener fails or Close is called.
func (s *Server) ListenAndServe() error {
	s.logger.Infow("webtransport server listening", "address", s.wt.H3.Addr)
	return s.wt.ListenAndServeTLS(s.certFile, s.keyFile)
}

func (s *Server) Close() error {
	return s.wt.Close()
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// handleLobby admits the CONNECT request, upgrades it and runs the
// session loops. It must not return while the session is live, so the
// uni stream accept loop runs on the handler goroutine.
func (s *Server) handleLobby(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	claim, appErr := s.resolveClaim(r)
	if appErr != nil {
		s.collector.AdmissionRejected(middleware.RejectionReason(appErr))
		writeError(w, appErr)
		return
	}

	conn, err := s.wt.Upgrade(w, r)
	if err != nil {
		s.logger.Warnw("webtransport upgrade failed",
			"identity", claim.Identity,
			"error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	sess, err := s.relay.Admit(r.Context(), claim, domain.TransportWebTransport)
	if err != nil {
		s.logger.Errorw("admission failed after upgrade",
			"identity", claim.Identity,
			"room_id", claim.RoomID,
			"error", err)
		conn.CloseWithError(1, "admission failed")
		return
	}
	s.collector.AdmissionDuration(time.Since(start))

	go s.writeLoop(sess, conn)
	go s.datagramLoop(sess, conn)
	s.streamLoop(sess, conn)
}

// resolveClaim maps the request path onto the two admission forms: the
// token query on /lobby and the deprecated /lobby/identity/room shape.
func (s *Server) resolveClaim(r *http.Request) (*domain.AdmissionClaim, *apperrors.AppError) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] == "lobby":
		claim, err := s.admission.Validate(r.URL.Query().Get("token"), time.Now())
		if err != nil {
			return nil, middleware.AdmissionError(err, "")
		}
		return claim, nil

	case len(parts) == 3 && parts[0] == "lobby":
		return middleware.LegacyClaim(s.admission, s.enforce,
			parts[1], parts[2], r.URL.Query().Get("token"), time.Now())

	default:
		return nil, apperrors.NewNotFoundError("lobby path")
	}
}

func writeError(w http.ResponseWriter, appErr *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	})
}

// streamLoop accepts inbound uni streams until the session dies. Each
// stream carries exactly one frame and is read on its own goroutine.
func (s *Server) streamLoop(sess *domain.Session, conn *webtransport.Session) {
	defer func() {
		s.relay.Teardown(context.Background(), sess.ID, domain.DepartDisconnected)
		conn.CloseWithError(0, "")
	}()

	for {
		stream, err := conn.AcceptUniStream(conn.Context())
		if err != nil {
			return
		}
		go s.readStream(sess, stream)
	}
}

func (s *Server) readStream(sess *domain.Session, stream *webtransport.ReceiveStream) {
	data, err := io.ReadAll(io.LimitReader(stream, s.readLimit+1))
	if err != nil {
		s.logger.Debugw("uni stream read failed",
			"session_id", sess.ID,
			"error", err)
		return
	}
	if int64(len(data)) > s.readLimit {
		stream.CancelRead(webtransport.StreamErrorCode(0))
		s.collector.PacketDropped("oversize")
		s.logger.Warnw("dropping oversize frame",
			"session_id", sess.ID,
			"identity", sess.Identity)
		return
	}

	s.handleFrame(sess, data)
}

// datagramLoop receives datagrams until the session dies. The bare
// "ping" datagram only refreshes liveness; anything else is a frame.
func (s *Server) datagramLoop(sess *domain.Session, conn *webtransport.Session) {
	for {
		data, err := conn.ReceiveDatagram(conn.Context())
		if err != nil {
			return
		}

		if bytes.Equal(data, keepAlivePing) {
			sess.Touch(time.Now())
			continue
		}
		s.handleFrame(sess, data)
	}
}

func (s *Server) handleFrame(sess *domain.Session, data []byte) {
	sess.Touch(time.Now())

	kind, payload, err := domain.DecodeFrame(data)
	if err != nil {
		s.logger.Debugw("dropping undecodable frame",
			"session_id", sess.ID,
			"error", err)
		return
	}

	// A bare heartbeat only proves the client is alive.
	if kind == domain.KindHeartbeat && len(payload) == 0 {
		return
	}

	s.relay.Route(context.Background(), sess, kind, payload)
}

// writeLoop drains the session queues, preferring control frames. It
// owns all outbound traffic so relative order per receiver holds.
func (s *Server) writeLoop(sess *domain.Session, conn *webtransport.Session) {
	for {
		select {
		case p := <-sess.Control():
			if !s.writePacket(sess, conn, p) {
				return
			}
			continue
		default:
		}

		select {
		case p := <-sess.Control():
			if !s.writePacket(sess, conn, p) {
				return
			}
		case p := <-sess.Media():
			if !s.writePacket(sess, conn, p) {
				return
			}
		case <-sess.Done():
			conn.CloseWithError(0, "session closed")
			return
		}
	}
}

// writePacket sends one frame, as a datagram when the payload fits
// under the threshold and on a fresh uni stream otherwise. A datagram
// refusal falls through to a stream since the peer may have negotiated
// a smaller datagram size.
func (s *Server) writePacket(sess *domain.Session, conn *webtransport.Session, p *domain.Packet) bool {
	frame := domain.EncodeFrame(p)

	if len(p.Payload) <= s.datagramThreshold {
		if err := conn.SendDatagram(frame); err == nil {
			return true
		}
	}

	stream, err := conn.OpenUniStreamSync(conn.Context())
	if err != nil {
		s.failWrite(sess, conn, err)
		return false
	}
	stream.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if _, err := stream.Write(frame); err != nil {
		stream.CancelWrite(webtransport.StreamErrorCode(0))
		s.failWrite(sess, conn, err)
		return false
	}
	if err := stream.Close(); err != nil {
		s.failWrite(sess, conn, err)
		return false
	}
	return true
}

func (s *Server) failWrite(sess *domain.Session, conn *webtransport.Session, err error) {
	s.logger.Infow("webtransport write failed, closing session",
		"session_id", sess.ID,
		"identity", sess.Identity,
		"error", err)
	s.relay.Teardown(context.Background(), sess.ID, domain.DepartWriteFailed)
	conn.CloseWithError(0, "write failed")
}
