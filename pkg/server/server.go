package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aeolun/ircd/pkg/irc"
)

var (
	errorLog *log.Logger
	debugLog *log.Logger
)

// Server owns the listeners, the worker loops, and the shared registry. One
// Server per process is the normal case, but nothing here is global state so
// tests run several side by side.
type Server struct {
	config   Config
	ctx      *Context
	loops    *loopGroup
	metrics  *Metrics
	shutdown chan struct{}
	wg       sync.WaitGroup

	listener    net.Listener
	sshListener net.Listener
	wsServer    *http.Server
	metricsSrv  *http.Server

	nextSessionID atomic.Uint64

	// Every live session, for CloseAll on shutdown. Sessions remove
	// themselves via forgetSession during teardown.
	sessionsMu sync.Mutex
	sessions   map[*Session]bool
}

// NewServer creates a server from a resolved Config. Listeners are not opened
// until Start.
func NewServer(config Config) (*Server, error) {
	if err := initLoggers(); err != nil {
		return nil, fmt.Errorf("failed to initialize loggers: %w", err)
	}

	server := &Server{
		config:   config,
		ctx:      NewContext(config.Origin, config.DefaultChannels),
		loops:    newLoopGroup(config.WorkerThreads),
		metrics:  NewMetrics(),
		shutdown: make(chan struct{}),
		sessions: make(map[*Session]bool),
	}

	return server, nil
}

// Context exposes the server-wide registry, mostly for tests and the bot
// tooling.
func (s *Server) Context() *Context {
	return s.ctx
}

// getServerDataDir returns the server data directory, creating it if needed
func getServerDataDir() (string, error) {
	var dataDir string
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		dataDir = filepath.Join(xdg, "ircd")
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share", "ircd")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}

// initLoggers sets up error and debug loggers
func initLoggers() error {
	if errorLog != nil {
		return nil // already initialized (second server in the same process)
	}

	dataDir, err := getServerDataDir()
	if err != nil {
		return err
	}

	// Error log goes to stderr and errors.log
	errorLogPath := filepath.Join(dataDir, "errors.log")
	errorFile, err := os.OpenFile(errorLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}

	// Startup marker, for distinguishing between runs
	startupMsg := fmt.Sprintf("=== Server started at %s ===\n", time.Now().Format(time.RFC3339))
	if _, err := errorFile.WriteString(startupMsg); err != nil {
		return err
	}

	errorLog = log.New(io.MultiWriter(os.Stderr, errorFile), "ERROR: ", log.LstdFlags)

	// Debug log goes to /dev/null by default (can be enabled via EnableDebugLogging)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)

	return nil
}

// EnableDebugLogging enables debug logging to debug.log
func (s *Server) EnableDebugLogging() {
	dataDir, err := getServerDataDir()
	if err != nil {
		log.Printf("Failed to get data directory: %v", err)
		return
	}

	debugLogPath := filepath.Join(dataDir, "debug.log")
	debugLogFile, err := os.OpenFile(debugLogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		log.Printf("Failed to open debug.log: %v", err)
		return
	}

	debugLog = log.New(io.MultiWriter(debugLogFile, os.Stderr), "DEBUG: ", log.LstdFlags)
	debugLog.Println("Debug logging enabled")
}

// Start opens the listeners and begins accepting clients.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.TCPPort)

	// Use ListenConfig to enable SO_REUSEADDR
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				opErr = setReuseAddr(fd)
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}

	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	log.Printf("TCP listener on %s", listener.Addr())

	if s.config.SSHPort > 0 {
		if err := s.startSSHServer(); err != nil {
			s.listener.Close()
			return fmt.Errorf("failed to start SSH server: %w", err)
		}
	}

	if s.config.WSPort > 0 {
		s.startWebSocketServer()
	}

	// Metrics HTTP server (internal only - never expose publicly!)
	if s.config.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/health", s.HealthHandler)
		s.metricsSrv = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", s.config.Host, s.config.MetricsPort),
			Handler: mux,
		}
		go func() {
			log.Printf("Metrics server listening on %s (/metrics, /health) - INTERNAL ONLY", s.metricsSrv.Addr)
			if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the address the TCP listener is bound to, for tests that
// listen on port 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// HealthHandler reports basic liveness plus a couple of registry counts.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	info := s.ctx.GetServerInfo()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","users":%d,"channels":%d}`+"\n",
		info.UserCount, info.ChannelCount)
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	log.Println("Graceful shutdown initiated...")

	close(s.shutdown)

	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	if s.sshListener != nil {
		s.sshListener.Close()
		s.sshListener = nil
	}
	if s.wsServer != nil {
		s.wsServer.Close()
		s.wsServer = nil
	}
	if s.metricsSrv != nil {
		s.metricsSrv.Close()
		s.metricsSrv = nil
	}

	// Closing each connection unblocks its reader, which schedules teardown
	// on the owning loop.
	s.sessionsMu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		open = append(open, sess)
	}
	s.sessionsMu.Unlock()
	for _, sess := range open {
		sess.scheduleTeardown()
	}

	s.loops.Shutdown()
	s.wg.Wait()

	log.Println("Graceful shutdown complete")
	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				log.Printf("Accept error: %v", err)
				continue
			}
		}

		go s.handleConnection(conn)
	}
}

// handleConnection sets up a session for a raw transport connection and
// starts its read loop. Shared by the TCP, WebSocket and SSH frontends.
func (s *Server) handleConnection(conn net.Conn) {
	// Disable Nagle's algorithm for immediate sends
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	s.serveConn(conn, conn.RemoteAddr().String())
}

// serveConn pins a new session to a worker loop and runs its reader until the
// transport fails or closes.
func (s *Server) serveConn(conn io.ReadWriteCloser, remoteAddr string) {
	id := s.nextSessionID.Add(1)
	safeConn := NewSafeConn(conn, remoteAddr)
	sess := newSession(id, s, safeConn, s.loops.Next())

	s.sessionsMu.Lock()
	s.sessions[sess] = true
	s.sessionsMu.Unlock()
	s.metrics.RecordConnection()

	debugLog.Printf("Session %d: new connection from %s", id, remoteAddr)

	s.wg.Add(1)
	go s.readLoop(sess, safeConn)
}

// readLoop reads lines off the wire, parses them, and hands commands to the
// session's loop. It is the only goroutine that reads from the connection.
func (s *Server) readLoop(sess *Session, conn *SafeConn) {
	defer s.wg.Done()

	reader := irc.NewReader(conn)
	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			if err != io.EOF {
				debugLog.Printf("Session %d: read error: %v", sess.id, err)
			}
			sess.scheduleTeardown()
			return
		}
		if msg == nil {
			continue // empty line
		}

		s.metrics.RecordMessageReceived(msg.Command)

		cmd, err := irc.ParseCommand(msg)
		if err != nil {
			if irc.IsProtocolError(err) {
				perr := err
				sess.loop.Execute(func() { sess.protocolError(perr) })
				continue
			}
			debugLog.Printf("Session %d: parse error: %v", sess.id, err)
			sess.scheduleTeardown()
			return
		}

		c := cmd
		sess.loop.Execute(func() { sess.dispatch(c) })
	}
}

// forgetSession removes a torn-down session from the live set.
func (s *Server) forgetSession(sess *Session) {
	s.sessionsMu.Lock()
	if s.sessions[sess] {
		delete(s.sessions, sess)
		s.metrics.RecordDisconnection()
	}
	s.sessionsMu.Unlock()
}

// syncRegistryGauges refreshes the registered-user and channel gauges from a
// registry snapshot. Called after any mutation that changes either count.
func (s *Server) syncRegistryGauges() {
	info := s.ctx.GetServerInfo()
	s.metrics.SetRegisteredUsers(info.UserCount)
	s.metrics.SetActiveChannels(info.ChannelCount)
}

// setReuseAddr marks the listening socket address reusable so a restart does
// not trip over sockets in TIME_WAIT.
func setReuseAddr(fd uintptr) error {
	return syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
}
