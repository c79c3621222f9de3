package netserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-fcserver/internal/auth"
	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fcserver/internal/opc"
)

const (
	// readBufferBytes is the size of each TCP read on an OPC connection.
	readBufferBytes = 64 * 1024

	// gracefulShutdownTimeout bounds in-flight HTTP responses on Close.
	gracefulShutdownTimeout = 5 * time.Second

	// acceptRetryDelay throttles the accept loop after a transient error.
	acceptRetryDelay = 50 * time.Millisecond

	readHeaderTimeout = 10 * time.Second
)

// Handler receives everything the server decodes.
type Handler interface {
	// HandlePixelMessage is called for every complete OPC message. The
	// message data is only valid during the call.
	HandlePixelMessage(msg opc.Message)

	// HandleControl answers one JSON control message. ok is false when
	// the message is dropped without a reply.
	HandleControl(ctx context.Context, data []byte) (reply []byte, ok bool)
}

// Logger is the logging interface used by the server.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds optional server collaborators.
type Options struct {
	Version   string
	Logger    Logger
	Validator *auth.Validator
}

// Server accepts OPC, HTTP and WebSocket clients on one TCP port.
type Server struct {
	cfg       *config.Config
	handler   Handler
	logger    Logger
	version   string
	validator *auth.Validator

	docs     map[string]document
	notFound document
	hub      *Hub

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	listener net.Listener
	httpLn   *chanListener
	httpSrv  *http.Server
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// New creates a server. Nothing listens until Start.
func New(cfg *config.Config, handler Handler, opts Options) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	docs, notFound, err := loadDocuments()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP documents: %w", err)
	}

	return &Server{
		cfg:       cfg,
		handler:   handler,
		logger:    opts.Logger,
		version:   opts.Version,
		validator: opts.Validator,
		docs:      docs,
		notFound:  notFound,
		hub:       NewHub(opts.Logger),
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Start listens on the configured address and serves in the background
// until ctx is cancelled or Close is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.cfg.Listen.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen.Addr(), err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = ln
	s.httpLn = newChanListener(ln.Addr())
	s.httpSrv = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}
	// One request per connection.
	s.httpSrv.SetKeepAlivesEnabled(false)

	go s.hub.Run(s.ctx, s.cfg.GetBroadcastInterval())

	go func() {
		if err := s.httpSrv.Serve(s.httpLn); err != nil &&
			!errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.wg.Add(1)
	go s.acceptLoop(ln)

	go func() {
		<-s.ctx.Done()
		s.shutdown()
	}()

	s.logger.Info("server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Broadcast queues msg for every WebSocket client.
func (s *Server) Broadcast(msg []byte) {
	s.hub.Broadcast(msg)
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

// Close stops listening, closes every connection and waits for the
// connection goroutines to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		return ErrNotStarted
	}
	cancel()
	s.shutdown()
	s.wg.Wait()
	return nil
}

// shutdown is idempotent; it runs from Close and from ctx cancellation.
func (s *Server) shutdown() {
	s.mu.Lock()
	ln, httpLn, httpSrv := s.listener, s.httpLn, s.httpSrv
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	//nolint:errcheck // Best-effort close during shutdown
	ln.Close()
	//nolint:errcheck // chanListener.Close never fails
	httpLn.Close()
	for _, c := range conns {
		c.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown", "error", err)
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

// serveConn detects the connection's protocol and serves it.
func (s *Server) serveConn(conn net.Conn) {
	id := uuid.NewString()
	if !s.track(conn) {
		conn.Close()
		return
	}

	head := make([]byte, DetectBytes)
	if _, err := io.ReadFull(conn, head); err != nil {
		s.logger.Debug("connection closed before protocol detection", "conn", id, "error", err)
		s.untrack(conn)
		conn.Close()
		return
	}

	proto := Detect(head)
	s.logger.Debug("client connected", "conn", id, "remote", conn.RemoteAddr().String(), "protocol", proto.String())

	if proto == ProtocolHTTP {
		// The http.Server owns the connection from here on.
		s.untrack(conn)
		if !s.httpLn.handoff(newPrefixConn(conn, head)) {
			conn.Close()
		}
		return
	}

	defer func() {
		s.untrack(conn)
		conn.Close()
	}()
	if err := s.serveOPC(conn, head); err != nil {
		s.logger.Warn("closing OPC connection", "conn", id, "error", err)
		return
	}
	s.logger.Debug("client disconnected", "conn", id)
}

// serveOPC reassembles messages until the client disconnects.
// It returns an error only for a framing failure.
func (s *Server) serveOPC(conn net.Conn, head []byte) error {
	r := NewReassembler()
	if err := r.Feed(head, s.handler.HandlePixelMessage); err != nil {
		return err
	}

	buf := make([]byte, readBufferBytes)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if ferr := r.Feed(buf[:n], s.handler.HandlePixelMessage); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			return nil
		}
	}
}

// track registers an OPC-or-undetected connection for Close. It refuses
// once the server is shutting down.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}
