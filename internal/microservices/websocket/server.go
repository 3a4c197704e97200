package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ServerConfig configures the relay listener.
type ServerConfig struct {
	Addr    string        // bind address, separate from the HTTP API port
	Client  ClientOptions // per-connection pump tuning
	Tokens  TokenValidator
	Logger  *slog.Logger
	Handler *Dispatcher
}

// server struct and methods
type Server struct {
	Hub *Hub

	addr       string
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	gate       *tokenGate // nil = open relay
	clientOpts ClientOptions
	logger     *slog.Logger

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	stopping   bool
	pumps      sync.WaitGroup // read and write pumps of every live connection
}

// constructor for Server
func NewServer(cfg ServerConfig, hub *Hub) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	dispatcher := cfg.Handler
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}
	s := &Server{
		Hub:        hub,
		addr:       cfg.Addr,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// dashboards are served from anywhere on the floor network
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clientOpts: cfg.Client.withDefaults(),
		logger:     logger,
	}
	if cfg.Tokens != nil {
		s.gate = &tokenGate{tokens: cfg.Tokens}
	}
	return s
}

// Listen binds the relay address. A bind failure is returned to the caller.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start websocket server on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           http.HandlerFunc(s.handleUpgrade),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.mu.Unlock()

	s.logger.Info("websocket_server_listening",
		"addr", ln.Addr().String(),
		"open_relay", s.gate == nil,
	)
	return nil
}

// Serve accepts connections until Stop. Each accepted connection is
// handshaken on its own goroutine, so a slow handshake never stalls accepts.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln, srv := s.listener, s.httpServer
	s.mu.Unlock()
	if ln == nil {
		return errors.New("websocket server is not listening")
	}

	err := srv.Serve(&acceptLogger{Listener: ln, logger: s.logger})
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// method to start the server
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop closes the listener, disconnects every client and waits for their
// pumps to finish or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	srv, ln := s.httpServer, s.listener
	s.mu.Unlock()

	if srv != nil {
		// hijacked websocket connections are not tracked by net/http
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("websocket_listener_shutdown_error", "error", err.Error())
		}
		ln.Close() // in case Serve was never called
	}
	closed := s.Hub.CloseAllConnections()
	s.logger.Info("websocket_clients_closed", "count", closed)

	done := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleUpgrade: handshake for one raw connection. Registration happens only
// after a successful upgrade.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.gate != nil {
		if err := s.gate.check(r); err != nil {
			s.logger.Warn("handshake_rejected",
				"remote_addr", r.RemoteAddr,
				"error", err.Error(),
			)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader already replied with an HTTP error
		s.logger.Warn("handshake_failed",
			"remote_addr", r.RemoteAddr,
			"error", err.Error(),
		)
		return
	}

	id := ConnectionID(r.RemoteAddr)
	client := NewClient(id, conn, s.Hub, s.dispatcher, s.clientOpts, s.logger)

	// registering under s.mu keeps Stop from missing a late handshake
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		conn.Close()
		return
	}
	if err := s.Hub.Register(id, client.Queue); err != nil {
		s.mu.Unlock()
		s.logger.Error("client_register_failed",
			"client_id", id,
			"error", err.Error(),
		)
		conn.Close()
		return
	}
	s.pumps.Add(2)
	s.mu.Unlock()

	go func() {
		defer s.pumps.Done()
		client.ReadPump()
	}()
	go func() {
		defer s.pumps.Done()
		client.WritePump()
	}()
}

// acceptLogger logs every accepted peer before net/http handshakes it.
type acceptLogger struct {
	net.Listener
	logger *slog.Logger
}

func (l *acceptLogger) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		if !errors.Is(err, net.ErrClosed) {
			l.logger.Warn("accept_failed", "error", err.Error())
		}
		return nil, err
	}
	l.logger.Debug("connection_accepted",
		"remote_addr", conn.RemoteAddr().String(),
	)
	return conn, nil
}
