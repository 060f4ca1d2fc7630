package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/nickyhof/QueryGate/db"
	"github.com/nickyhof/QueryGate/query"
)

// Processor runs the requests read by the server.
type Processor interface {
	Process(ctx context.Context, slot *query.Slot, req query.Request) query.Response
	Fail(slot *query.Slot, req query.Request, msg string) query.Response
	Registry() *db.Registry
}

// Mode selects how connections reach a worker.
type Mode int

const (
	// PoolMode queues connections for a fixed set of workers.
	PoolMode Mode = iota
	// PerConnMode serves each connection on its own goroutine, as long as
	// one of the slots is free.
	PerConnMode
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "pool":
		return PoolMode, nil
	case "perconn":
		return PerConnMode, nil
	}
	return PoolMode, fmt.Errorf("unknown server mode %q: use pool or perconn", s)
}

type Config struct {
	Threads      int
	QueueSize    int
	Mode         Mode
	Full         FullPolicy
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       pslog.Logger
}

// Server accepts HTTP/1.0 style query requests and answers each on its own
// connection.
type Server struct {
	listener   net.Listener
	processor  Processor
	cfg        Config
	logger     pslog.Logger
	pool       *Pool
	slots      *SlotPool
	metrics    *metrics
	tlsEnabled bool

	ctx      context.Context
	cancel   context.CancelFunc
	fatal    chan error
	acceptWG sync.WaitGroup
	connWG   sync.WaitGroup
	stopOnce sync.Once
}

func NewServer(processor Processor, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	if cfg.Threads <= 0 {
		cfg.Threads = DefaultThreads
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		processor: processor,
		cfg:       cfg,
		logger:    logger.With("sys", "server"),
		ctx:       ctx,
		cancel:    cancel,
		fatal:     make(chan error, 1),
	}
	if cfg.Mode == PerConnMode {
		s.slots = NewSlotPool(cfg.Threads)
	} else {
		s.pool = NewPool(cfg.Threads, cfg.QueueSize, cfg.Full, logger)
	}
	s.metrics = newMetrics(processor.Registry(), s.queueLen)
	return s
}

// Start begins listening for connections on the specified address.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.serve(listener)
	return nil
}

// StartTLS is Start with TLS using the given certificate and key files.
func (s *Server) StartTLS(addr, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.tlsEnabled = true
	s.serve(tls.NewListener(listener, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}))
	return nil
}

func (s *Server) serve(listener net.Listener) {
	s.listener = listener
	if s.pool != nil {
		s.pool.Start(s.handleConnection)
	}
	s.logger.Info("server.listen", "addr", s.Addr(), "tls", s.tlsEnabled, "threads", s.cfg.Threads, "mode", s.modeName())

	s.acceptWG.Add(1)
	go s.acceptLoop()
}

// Stop closes the listener, serves the connections already accepted and
// waits for the workers.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
		s.acceptWG.Wait()
		if s.pool != nil {
			s.pool.Close()
		}
		s.connWG.Wait()
		s.logger.Info("server.stopped")
	})
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) TLSEnabled() bool {
	return s.tlsEnabled
}

// Fatal delivers the first error that leaves the server unable to continue.
func (s *Server) Fatal() <-chan error {
	return s.fatal
}

func (s *Server) modeName() string {
	if s.cfg.Mode == PerConnMode {
		return "perconn"
	}
	return "pool"
}

func (s *Server) queueLen() int {
	if s.pool == nil {
		return 0
	}
	return s.pool.Len()
}

func (s *Server) acceptLoop() {
	defer s.acceptWG.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("server.accept.error", "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		task := Task{Conn: conn, Accepted: time.Now()}

		if s.slots != nil {
			slot, ok := s.slots.TryAcquire()
			if !ok {
				s.reject(conn)
				continue
			}
			s.connWG.Add(1)
			go func() {
				defer s.connWG.Done()
				defer s.slots.Release(slot)
				defer func() {
					if r := recover(); r != nil {
						s.logger.Error("server.conn.panic", "slot", slot.Index, "panic", fmt.Sprint(r))
						conn.Close()
					}
				}()
				s.handleConnection(slot, task)
			}()
			continue
		}

		switch err := s.pool.Submit(s.ctx, task); {
		case err == nil:
		case errors.Is(err, ErrQueueFull):
			s.reject(conn)
		default:
			conn.Close()
			return
		}
	}
}

// reject answers 503 when no worker can take the connection.
func (s *Server) reject(conn net.Conn) {
	s.metrics.rejected.Inc()
	s.logger.Debug("server.reject", "remote", conn.RemoteAddr().String())
	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	writeUnavailable(conn)
	conn.Close()
}

func (s *Server) handleConnection(slot *query.Slot, task Task) {
	conn := task.Conn
	defer conn.Close()
	s.metrics.active.Inc()
	defer s.metrics.active.Dec()

	if s.cfg.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	if tc, ok := conn.(*tls.Conn); ok {
		if err := tc.Handshake(); err != nil {
			s.logger.Debug("server.tls.error", "remote", conn.RemoteAddr().String(), "error", err)
			return
		}
	}

	id := uuid.NewString()
	req, msg := readRequest(conn)
	var resp query.Response
	if msg != "" {
		resp = s.processor.Fail(slot, req, msg)
	} else {
		resp = s.processor.Process(context.Background(), slot, req)
	}
	s.metrics.observe(resp)

	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := writeResponse(conn, resp); err != nil {
		s.logger.Debug("server.write.error", "id", id, "remote", req.IP, "error", err)
	}
	s.logger.Debug("server.request",
		"id", id,
		"slot", slot.Index,
		"remote", req.IP,
		"op", resp.Op,
		"bytes", humanize.Bytes(uint64(len(resp.Body))),
		"elapsed", time.Since(task.Accepted).String(),
	)

	var qerr *query.Error
	if errors.As(resp.Err, &qerr) && qerr.Severity == query.SeverityProcess {
		s.logger.Error("server.request.fatal", "id", id, "error", qerr.Msg)
		select {
		case s.fatal <- qerr:
		default:
		}
	}
}
